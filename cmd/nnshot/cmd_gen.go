package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/singleshot/backend/onnx"
)

func newGenCmd() *cobra.Command {
	var static bool
	cmd := &cobra.Command{
		Use:   "gen " + strings.Join(onnx.SampleNames(), "|") + " PATH",
		Short: "Write a sample ONNX model",
		Long: `Write a small ONNX model for trying out nnshot.

  add   output = input + 2, float32 vector
  relu  output = min(max(input, 0), 6), float32 rows of four

The leading axis is symbolic unless --static is set, so the model can be
reshaped with "invoke --input-info".`,
		Args: cobra.ExactArgs(2),
		// Generating needs no environment or logger.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := onnx.SampleModel(args[0], static)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], onnx.Marshal(m), 0o644); err != nil { //nolint:gosec // G306: models are not secret.
				return errors.Wrap(err, "write model")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s model to %s\n", args[0], args[1])
			return err
		},
	}
	cmd.Flags().BoolVar(&static, "static", false, "fix every extent")
	return cmd
}

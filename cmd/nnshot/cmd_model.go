package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/singleshot/single"
	"github.com/born-ml/singleshot/tensor"
)

func newInfoCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info MODEL",
		Short: "Show the input and output tensors of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := single.Open(args[0], g.options())
			if err != nil {
				return err
			}
			defer s.Close()

			in, err := s.InputInfo()
			if err != nil {
				return err
			}
			out, err := s.OutputInfo()
			if err != nil {
				return err
			}
			meta, err := s.Metadata()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "backend: %s\ntimeout: %s\n\n", s.Backend(), s.Timeout())
			renderTable(w, schemaHeader, append(schemaRows("input", in), schemaRows("output", out)...))
			if len(meta) > 0 {
				fmt.Fprintln(w)
				renderTable(w, []string{"KEY", "VALUE"}, metadataRows(meta))
			}
			return nil
		},
	}
}

type invokeOptions struct {
	input     string
	output    string
	inputInfo string
	timeout   time.Duration
	repeat    int
}

func newInvokeCmd(g *globals) *cobra.Command {
	var opts invokeOptions
	cmd := &cobra.Command{
		Use:   "invoke MODEL",
		Short: "Run a model once or repeatedly",
		Long: `Run a model on msgpack-encoded tensors.

Without --input the input tensors are zero-filled. --input-info reshapes
the model before the run, from a YAML schema such as:

  tensors:
    - type: float32
      dim: "10"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, g, args[0], opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.input, "input", "i", "", "msgpack file with the input tensors")
	fs.StringVarP(&opts.output, "output", "o", "", "write the output tensors to this msgpack file")
	fs.StringVar(&opts.inputInfo, "input-info", "", "YAML file with the input schema to apply")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-invoke timeout (default $NNSHOT_TIMEOUT)")
	fs.IntVarP(&opts.repeat, "repeat", "n", 1, "number of invocations")
	return cmd
}

func readInfo(path string) (*tensor.Info, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: user-supplied schema file.
	if err != nil {
		return nil, errors.Wrap(err, "read input info")
	}
	info := &tensor.Info{}
	if err := yaml.Unmarshal(b, info); err != nil {
		return nil, err
	}
	return info, nil
}

func readData(path string) (*tensor.Data, error) {
	f, err := os.Open(path) //nolint:gosec // G304: user-supplied tensor file.
	if err != nil {
		return nil, errors.Wrap(err, "open input")
	}
	defer f.Close()
	return tensor.DecodeData(f)
}

func writeData(path string, d *tensor.Data) error {
	f, err := os.Create(path) //nolint:gosec // G304: user-supplied output path.
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	if err := tensor.EncodeData(f, d); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close output")
}

func runInvoke(cmd *cobra.Command, g *globals, model string, opts invokeOptions) error {
	if opts.repeat < 1 {
		return errors.Wrapf(single.ErrInvalidArgument, "--repeat must be at least 1, got %d", opts.repeat)
	}

	so := g.options()
	if opts.timeout > 0 {
		so.Timeout = opts.timeout
	}
	if opts.inputInfo != "" {
		info, err := readInfo(opts.inputInfo)
		if err != nil {
			return err
		}
		so.Input = info
	}

	s, err := single.Open(model, so)
	if err != nil {
		return err
	}
	defer s.Close()

	var in *tensor.Data
	if opts.input != "" {
		if in, err = readData(opts.input); err != nil {
			return err
		}
	} else {
		info, err := s.InputInfo()
		if err != nil {
			return err
		}
		if in, err = info.Allocate(); err != nil {
			return err
		}
	}

	var (
		out      *tensor.Data
		elapsed  = make([]time.Duration, 0, opts.repeat)
		failures = make(map[string]int)
	)
	for i := 0; i < opts.repeat; i++ {
		start := time.Now()
		res, err := s.Invoke(in)
		if err != nil {
			if opts.repeat == 1 {
				return err
			}
			failures[single.Kind(err)]++
			g.log.V(1).Info("invoke failed", "iteration", i, "error", err.Error())
			continue
		}
		elapsed = append(elapsed, time.Since(start))
		out = res
	}
	if out == nil {
		return errors.Errorf("all %d invocations failed: %v", opts.repeat, failures)
	}

	w := cmd.OutOrStdout()
	if opts.output != "" {
		if err := writeData(opts.output, out); err != nil {
			return err
		}
	}
	renderTable(w, schemaHeader, schemaRows("output", out.Info()))
	if opts.repeat > 1 {
		fmt.Fprintln(w)
		renderTable(w, []string{"RUNS", "FAILED", "MIN", "MEDIAN", "MAX"}, [][]string{latencyRow(elapsed, opts.repeat-len(elapsed))})
	}
	return nil
}

func latencyRow(elapsed []time.Duration, failed int) []string {
	sorted := append([]time.Duration(nil), elapsed...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return []string{
		fmt.Sprint(len(sorted) + failed),
		fmt.Sprint(failed),
		sorted[0].String(),
		sorted[len(sorted)/2].String(),
		sorted[len(sorted)-1].String(),
	}
}

func metadataRows(meta map[string]string) [][]string {
	rows := make([][]string, 0, len(meta))
	for k, v := range meta {
		rows = append(rows, []string{k, v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return rows
}

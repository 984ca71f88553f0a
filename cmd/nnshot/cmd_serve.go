package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/singleshot/internal/server"
	"github.com/born-ml/singleshot/single"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve MODEL",
		Short: "Serve a model over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = g.cfg.Addr
			}

			s, err := single.Open(args[0], g.options())
			if err != nil {
				return err
			}
			defer s.Close()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return errors.Wrap(err, "listen")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(s, g.log).Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $NNSHOT_ADDR)")
	return cmd
}

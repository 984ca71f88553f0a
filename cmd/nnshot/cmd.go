package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/born-ml/singleshot/internal/envconfig"
	"github.com/born-ml/singleshot/internal/logutil"
	"github.com/born-ml/singleshot/single"
	"github.com/born-ml/singleshot/tensor"
)

const version = "v0.1.0-dev"

// globals are the settings shared by every subcommand.
type globals struct {
	cfg       envconfig.Config
	logLevel  string
	logFormat string
	backend   string
	threads   int
	log       logr.Logger
}

func (g *globals) bind(fs *pflag.FlagSet) {
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error or a verbosity number (default $NNSHOT_LOG_LEVEL)")
	fs.StringVar(&g.logFormat, "log-format", "", "log format: console or json (default $NNSHOT_LOG_FORMAT)")
	fs.StringVar(&g.backend, "backend", "", "backend name, overriding the file extension (default $NNSHOT_BACKEND)")
	fs.IntVar(&g.threads, "threads", 0, "kernel workers per run, 0 for one per CPU (default $NNSHOT_THREADS)")
}

// setup loads the environment and applies flag overrides.
func (g *globals) setup(fs *pflag.FlagSet) error {
	cfg, err := envconfig.Load()
	if err != nil {
		return err
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = g.logFormat
	}
	if fs.Changed("backend") {
		cfg.Backend = g.backend
	}
	if fs.Changed("threads") {
		cfg.Threads = g.threads
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.cfg = cfg

	g.log, err = logutil.New(cfg.LogLevel, cfg.LogFormat)
	return err
}

// options returns single.Options from the loaded settings.
func (g *globals) options() single.Options {
	return single.Options{
		Backend: g.cfg.Backend,
		Timeout: g.cfg.Timeout,
		Threads: g.cfg.Threads,
		Logger:  g.log,
	}
}

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false
	g := &globals{log: logr.Discard()}

	rootCmd := &cobra.Command{
		Use:           "nnshot",
		Short:         "Run neural network models one invocation at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd.Flags())
		},
	}
	g.bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newVersionCmd(),
		newInfoCmd(g),
		newInvokeCmd(g),
		newServeCmd(g),
		newGenCmd(),
		newEnvCmd(g),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "nnshot %s %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}

func newEnvCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the effective NNSHOT_* settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := g.cfg.AsMap()
			rows := make([][]string, 0, len(m))
			for _, k := range []string{"TIMEOUT", "BACKEND", "THREADS", "LOG_LEVEL", "LOG_FORMAT", "ADDR"} {
				key := envconfig.Prefix + "_" + k
				rows = append(rows, []string{key, m[key]})
			}
			renderTable(cmd.OutOrStdout(), []string{"VARIABLE", "VALUE"}, rows)
			return nil
		},
	}
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}

// schemaRows lists the tensors of info for a table.
func schemaRows(side string, info *tensor.Info) [][]string {
	rows := make([][]string, 0, info.Count())
	for i, e := range info.Entries() {
		size, _ := tensor.ByteSize(e.Type, e.Dim)
		rows = append(rows, []string{side, fmt.Sprint(i), e.Name, e.Type.String(), e.Dim.String(), fmt.Sprint(size)})
	}
	return rows
}

var schemaHeader = []string{"SIDE", "INDEX", "NAME", "TYPE", "DIMENSION", "BYTES"}

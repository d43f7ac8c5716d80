package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/config"
)

// RootOptions holds global flags for all commands. After the root
// command's pre-run the fields hold the resolved settings: flags first,
// then ROSTER_ environment variables, then defaults.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	LogFormat   string // "json" | "text"
	DB          string
	Pipeline    string
	Rate        float64
	MetricsFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the roster CLI.
func NewRootCommand() *cobra.Command {
	defaults := config.DefaultSettings()
	opts := &RootOptions{}
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "roster - reconcile people across directories",
		Long: `Keep downstream directories (access control, messaging, billing) in step
with a canonical registry of people.

Each pair in the pipeline definition names a canonical source and a
downstream directory. roster plans the creates, updates, suspensions and
removals needed to bring the directory in line, executes them, and keeps
an audit trail of every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return WrapExitError(ExitCommandError, "invalid flags", err)
			}
			s, err := config.ReadSettings(v)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid settings", err)
			}
			opts.apply(s)
			setupLogging(cmd.ErrOrStderr(), opts.LogFormat, opts.Verbose)
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, config.KeyVerbose, "v", false, "verbose output")
	pf.StringVar(&opts.Format, config.KeyFormat, defaults.Format, "output format (json|text)")
	pf.StringVar(&opts.LogFormat, config.KeyLogFormat, defaults.LogFormat, "log format on stderr (json|text)")
	pf.StringVar(&opts.DB, config.KeyDB, defaults.DB, "path to the SQLite audit database")
	pf.StringVarP(&opts.Pipeline, config.KeyPipeline, "p", defaults.Pipeline, "pipeline definition (CUE file or directory)")
	pf.Float64Var(&opts.Rate, config.KeyRate, defaults.Rate, "override calls per second for every pair (0 keeps the pair setting)")
	pf.StringVar(&opts.MetricsFile, config.KeyMetricsFile, defaults.MetricsFile, "write Prometheus metrics to this textfile after sync")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func (o *RootOptions) apply(s config.Settings) {
	o.Verbose = s.Verbose
	o.Format = s.Format
	o.LogFormat = s.LogFormat
	o.DB = s.DB
	o.Pipeline = s.Pipeline
	o.Rate = s.Rate
	o.MetricsFile = s.MetricsFile
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// setupLogging installs the default slog logger. Logs always go to w,
// never to the command output.
func setupLogging(w io.Writer, format string, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// checkFormat validates opts.Format for commands run without the root
// pre-run, such as in tests.
func checkFormat(opts *RootOptions) error {
	if opts.Format == "" {
		opts.Format = "text"
	}
	if !isValidFormat(opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}
	return nil
}

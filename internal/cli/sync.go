package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/metrics"
	"github.com/roach88/roster/internal/pipeline"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs pipeline.RunIDGenerator
}

// SyncResult is the JSON payload of the sync command.
type SyncResult struct {
	Reports []*executor.Report `json:"reports"`
	Fatal   []string           `json:"fatal,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return newSyncCommand(&SyncOptions{RootOptions: rootOpts})
}

func newSyncCommand(opts *SyncOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [pair...]",
		Short: "Plan and execute every pair",
		Long: `Plan each pair and apply the actions to its downstream directory.

Pairs run concurrently. Every report is stored in the audit database, also
when the run is interrupted. Failed actions are not retried; run sync again
to pick up transient failures. Creates that already succeeded are skipped
through the create-key ledger.

Exit codes:
  0 - All actions succeeded
  1 - One or more actions failed, or the run was interrupted
  2 - Command error (pipeline invalid, source unavailable, database error)

Examples:
  roster sync
  roster sync acs --rate 2
  roster sync --metrics-file /var/lib/node_exporter/roster.prom`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args, cmd)
		},
	}
	return cmd
}

func runSync(opts *SyncOptions, names []string, cmd *cobra.Command) error {
	if err := checkFormat(opts.RootOptions); err != nil {
		return err
	}
	f := opts.formatter(cmd)

	st, err := openStore(f, opts.DB)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	passes, err := buildPasses(f, opts.RootOptions, names, st)
	if err != nil {
		return err
	}

	runnerOpts := []pipeline.Option{pipeline.WithReportSink(st)}
	if opts.RunIDs != nil {
		runnerOpts = append(runnerOpts, pipeline.WithRunIDs(opts.RunIDs))
	}
	var rec *metrics.Recorder
	if opts.MetricsFile != "" {
		rec = metrics.NewRecorder()
		runnerOpts = append(runnerOpts, pipeline.WithMetrics(rec))
	}
	runner := pipeline.NewRunner(runnerOpts...)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	slog.Info("sync starting", "pairs", len(passes), "db", opts.DB)
	outcomes, fatal := runner.RunAll(ctx, passes)

	if rec != nil {
		if err := rec.WriteToTextfile(opts.MetricsFile); err != nil {
			slog.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	result := SyncResult{Reports: []*executor.Report{}}
	for _, out := range outcomes {
		if out != nil && out.Report != nil {
			result.Reports = append(result.Reports, out.Report)
		}
	}
	if fatal != nil {
		result.Fatal = unwrapJoined(fatal)
	}

	return outputSync(f, result, fatal)
}

// signalContext cancels on SIGINT or SIGTERM. An interrupted run stops
// before its next action and its report is still saved.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping after current action", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

func outputSync(f *OutputFormatter, result SyncResult, fatal error) error {
	failed, cancelled := 0, false
	runIDs := make([]string, 0, len(result.Reports))
	for _, rep := range result.Reports {
		failed += len(rep.Failures)
		cancelled = cancelled || rep.Cancelled
		runIDs = append(runIDs, rep.RunID)
	}

	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, RunIDs: runIDs}
		switch {
		case fatal != nil:
			resp.Status = "error"
			resp.Error = &CLIError{Code: fatalCode(fatal), Message: result.Fatal[0]}
		case failed > 0 || cancelled:
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeActionsFailed, Message: fmt.Sprintf("%d action(s) failed", failed)}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		for _, rep := range result.Reports {
			printReport(f.Writer, rep, f.Verbose)
		}
		for _, msg := range result.Fatal {
			fmt.Fprintf(f.Writer, "✗ %s\n", msg)
		}
	}

	switch {
	case fatal != nil:
		return WrapExitError(ExitCommandError, "sync aborted", fatal)
	case cancelled:
		return NewExitError(ExitFailure, "sync interrupted")
	case failed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d action(s) failed", failed))
	}
	return nil
}

// printReport renders one run summary with its failures.
func printReport(w io.Writer, rep *executor.Report, verbose bool) {
	mark := "✓"
	if rep.Failed() || rep.Cancelled {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s: created %d, updated %d, suspended %d, removed %d, skipped %d, failed %d (run %s)\n",
		mark, rep.Pair, rep.Created, rep.Updated, rep.Suspended, rep.Removed, rep.Skipped, len(rep.Failures), rep.RunID)

	if rep.Cancelled {
		fmt.Fprintln(w, "  interrupted before the last action")
	}
	if verbose || len(rep.Failures) <= 10 {
		for _, fl := range rep.Failures {
			fmt.Fprintf(w, "  %s %s: %s\n", fl.ActionKind, fl.EntityID, fl.Message)
		}
	} else {
		fmt.Fprintf(w, "  %d failures, use --verbose or 'roster report show %s' to list them\n", len(rep.Failures), rep.RunID)
	}
	if rep.HasTransient() {
		fmt.Fprintln(w, "  transient failures: run sync again to retry")
	}
	if rep.Review > 0 || rep.Orphans > 0 {
		fmt.Fprintf(w, "  review %d, orphans %d\n", rep.Review, rep.Orphans)
	}
}

func fatalCode(err error) string {
	if directory.IsSourceUnavailable(err) {
		return ErrCodeSourceUnavailable
	}
	return ErrCodeGeneric
}

// unwrapJoined flattens an errors.Join result into messages.
func unwrapJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return errorStrings(joined.Unwrap())
	}
	return []string{err.Error()}
}

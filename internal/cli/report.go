package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/store"
)

// ReportOptions holds flags for the report commands.
type ReportOptions struct {
	*RootOptions
	Pair      string
	Limit     int
	Entity    string
	Target    string
	OlderThan time.Duration
}

// PruneResult is the JSON payload of report prune.
type PruneResult struct {
	Target string    `json:"target"`
	Cutoff time.Time `json:"cutoff"`
	Pruned int64     `json:"pruned"`
}

// NewReportCommand creates the report command group.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect the audit trail of past runs",
		Long: `Read run reports from the audit database.

Examples:
  roster report list --pair acs --limit 10
  roster report show 01927c3e-...
  roster report failures --entity E2
  roster report prune --target acs --older-than 720h`,
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Pair, "pair", "", "only runs of this pair")
	list.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one run with its failures",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportShow(opts, args[0], cmd)
		},
	}

	failures := &cobra.Command{
		Use:           "failures",
		Short:         "List every recorded failure for one entity",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportFailures(opts, cmd)
		},
	}
	failures.Flags().StringVar(&opts.Entity, "entity", "", "external id or downstream id (required)")
	_ = failures.MarkFlagRequired("entity")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Drop create keys older than a duration",
		Long: `Delete create idempotency keys recorded for one directory before
now minus --older-than. A pruned key no longer guards against a duplicate
create of the same content.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportPrune(opts, cmd)
		},
	}
	prune.Flags().StringVar(&opts.Target, "target", "", "directory name the keys belong to (required)")
	prune.Flags().DurationVar(&opts.OlderThan, "older-than", 0, "minimum key age, e.g. 720h (required)")
	_ = prune.MarkFlagRequired("target")
	_ = prune.MarkFlagRequired("older-than")

	cmd.AddCommand(list, show, failures, prune)
	return cmd
}

func withStore(opts *RootOptions, cmd *cobra.Command, fn func(*OutputFormatter, *store.Store) error) error {
	if err := checkFormat(opts); err != nil {
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
	return fn(f, st)
}

func runReportList(opts *ReportOptions, cmd *cobra.Command) error {
	return withStore(opts.RootOptions, cmd, func(f *OutputFormatter, st *store.Store) error {
		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{Pair: opts.Pair, Limit: opts.Limit})
		if err != nil {
			_ = f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}

		if f.Format == "json" {
			return f.Success(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(f.Writer, "No runs recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tPAIR\tSTARTED\tCREATED\tUPDATED\tSUSPENDED\tREMOVED\tSKIPPED\tFAILED")
		for _, r := range runs {
			status := fmt.Sprint(r.Failed)
			if r.Cancelled {
				status += " (cancelled)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.RunID, r.Pair, r.StartedAt.Format(time.RFC3339),
				r.Created, r.Updated, r.Suspended, r.Removed, r.Skipped, status)
		}
		return tw.Flush()
	})
}

func runReportShow(opts *ReportOptions, runID string, cmd *cobra.Command) error {
	return withStore(opts.RootOptions, cmd, func(f *OutputFormatter, st *store.Store) error {
		rep, err := st.GetRun(cmd.Context(), runID)
		if errors.Is(err, store.ErrNotFound) {
			_ = f.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
		}
		if err != nil {
			_ = f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}

		if f.Format == "json" {
			return f.Success(rep)
		}
		printReport(f.Writer, rep, true)
		fmt.Fprintf(f.Writer, "  engine %s, started %s, finished %s\n",
			rep.EngineVersion, rep.StartedAt.Format(time.RFC3339), rep.FinishedAt.Format(time.RFC3339))
		return nil
	})
}

func runReportFailures(opts *ReportOptions, cmd *cobra.Command) error {
	return withStore(opts.RootOptions, cmd, func(f *OutputFormatter, st *store.Store) error {
		failures, err := st.FailuresForEntity(cmd.Context(), opts.Entity)
		if err != nil {
			_ = f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read failures", err)
		}

		if f.Format == "json" {
			return f.Success(failures)
		}
		if len(failures) == 0 {
			fmt.Fprintf(f.Writer, "No failures recorded for %s.\n", opts.Entity)
			return nil
		}
		for _, fl := range failures {
			fmt.Fprintf(f.Writer, "%s %s [%s]: %s\n", fl.ActionKind, fl.EntityID, fl.ErrorKind, fl.Message)
		}
		return nil
	})
}

func runReportPrune(opts *ReportOptions, cmd *cobra.Command) error {
	if opts.OlderThan <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --older-than %v: must be positive", opts.OlderThan))
	}
	return withStore(opts.RootOptions, cmd, func(f *OutputFormatter, st *store.Store) error {
		cutoff := time.Now().Add(-opts.OlderThan).UTC()
		n, err := st.Ledger(opts.Target).Prune(cmd.Context(), cutoff)
		if err != nil {
			_ = f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to prune create keys", err)
		}
		slog.Info("create keys pruned", "target", opts.Target, "cutoff", cutoff, "pruned", n)

		if f.Format == "json" {
			return f.Success(PruneResult{Target: opts.Target, Cutoff: cutoff, Pruned: n})
		}
		fmt.Fprintf(f.Writer, "Pruned %d create key(s) for %s recorded before %s.\n",
			n, opts.Target, cutoff.Format(time.RFC3339))
		return nil
	})
}

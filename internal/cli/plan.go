package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/normalize"
	"github.com/roach88/roster/internal/pipeline"
)

// PlanResult is the dry-run outcome for one pair.
type PlanResult struct {
	Pair     string            `json:"pair"`
	Counts   map[string]int    `json:"counts"`
	Plan     json.RawMessage   `json:"plan"`
	Issues   []normalize.Issue `json:"issues"`
	Rejected int               `json:"rejected"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [pair...]",
		Short: "Show the actions a sync would take",
		Long: `Fetch both snapshots for each pair and print the plan without calling
the downstream directory. Secret values are redacted.

Examples:
  roster plan
  roster plan acs --pipeline ./school.cue
  roster plan --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runPlan(opts *RootOptions, names []string, cmd *cobra.Command) error {
	if err := checkFormat(opts); err != nil {
		return err
	}
	f := opts.formatter(cmd)

	passes, err := buildPasses(f, opts, names, nil)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner()
	results := make([]PlanResult, 0, len(passes))
	for _, pass := range passes {
		out, err := runner.Plan(cmd.Context(), pass)
		if err != nil {
			code := ErrCodeGeneric
			if directory.IsSourceUnavailable(err) {
				code = ErrCodeSourceUnavailable
			}
			_ = f.Error(code, err.Error(), nil)
			return WrapExitError(ExitCommandError, "plan failed", err)
		}

		if f.Format != "json" {
			printPlan(f.Writer, out, f.Verbose)
			continue
		}
		raw, err := out.Plan.MarshalCanonical()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render plan", err)
		}
		results = append(results, PlanResult{
			Pair:     out.Pair,
			Counts:   planCounts(out),
			Plan:     raw,
			Issues:   nonNilIssues(out.Issues),
			Rejected: out.Rejected,
		})
	}

	if f.Format == "json" {
		return f.Success(results)
	}
	return nil
}

func planCounts(out *pipeline.Outcome) map[string]int {
	counts := make(map[string]int, 7)
	for kind, n := range out.Plan.Counts() {
		counts[string(kind)] = n
	}
	counts["orphans"] = len(out.Plan.Orphans)
	counts["review"] = len(out.Plan.Review)
	counts["ignored"] = len(out.Plan.Ignored)
	return counts
}

// printPlan renders one pair's plan. Markers: + create, ~ update,
// - suspend, x remove, ? review.
func printPlan(w io.Writer, out *pipeline.Outcome, verbose bool) {
	p := out.Plan
	fmt.Fprintf(w, "%s: %d create, %d update, %d suspend, %d remove\n",
		out.Pair, len(p.Create), len(p.Update), len(p.Suspend), len(p.Remove))

	for _, a := range p.Create {
		fmt.Fprintf(w, "  + %s %s\n", a.EntityID(), a.Canonical.FullName)
	}
	for _, a := range p.Update {
		fmt.Fprintf(w, "  ~ %s -> %s %s\n", a.EntityID(), a.DownstreamID, a.Patch.Redacted(p.IsSecret))
	}
	for _, a := range p.Suspend {
		fmt.Fprintf(w, "  - %s (%s)\n", a.DownstreamID, a.EntityID())
	}
	for _, a := range p.Remove {
		fmt.Fprintf(w, "  x %s (%s)\n", a.DownstreamID, a.EntityID())
	}
	for _, t := range p.Review {
		chosen := t.Chosen
		if chosen == "" {
			chosen = "none"
		}
		fmt.Fprintf(w, "  ? %s %q ties %v, paired %s\n", t.ExternalID, t.FullName, t.Candidates, chosen)
	}

	if len(p.Orphans) > 0 {
		fmt.Fprintf(w, "  orphans: %v\n", p.Orphans)
	}
	if len(p.Ignored) > 0 {
		fmt.Fprintf(w, "  ignored: %v\n", p.Ignored)
	}
	if len(out.Issues) > 0 {
		fmt.Fprintf(w, "  %d normalization issue(s), %d record(s) rejected\n", len(out.Issues), out.Rejected)
		if verbose {
			for _, is := range out.Issues {
				fmt.Fprintf(w, "    %s %s %q: %s\n", is.ExternalID, is.Field, is.Value, is.Reason)
			}
		}
	}
}

func nonNilIssues(issues []normalize.Issue) []normalize.Issue {
	if issues == nil {
		return []normalize.Issue{}
	}
	return issues
}

package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/roster/internal/classify"
	"github.com/roach88/roster/internal/diff"
	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/merge"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/normalize"
	"github.com/roach88/roster/internal/pipeline"
	"github.com/roach88/roster/internal/store"
	"github.com/roach88/roster/internal/testutil"
)

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory directory and a fresh
// in-memory SQLite store. Run ids and timestamps are deterministic.
//
// Execution flow:
//  1. Build the pass from the scenario settings
//  2. Run it Runs times against the same directory and ledger
//  3. Evaluate the assertions against the outcomes and final state
//
// Returns an error only if the scenario cannot be executed at all. Failed
// assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	mem := directory.NewMemory(scenario.Target, scenario.Downstream...)
	pass, err := buildPass(scenario, directory.Directory(testutil.NewFlakyDirectory(mem, scenario.Faults...)), st)
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(
		pipeline.WithRunIDs(testutil.NewFixedRunIDs(runIDs(scenario)...)),
		pipeline.WithReportSink(st),
		pipeline.WithClock(testutil.NewStepClock().Now),
	)

	result := NewResult()
	for i := 0; i < scenario.Runs; i++ {
		out, err := runner.Run(ctx, pass)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	result.Downstream = mem.Snapshot()
	slices.SortFunc(result.Downstream, func(a, b model.DownstreamEntity) int {
		return strings.Compare(a.DownstreamID, b.DownstreamID)
	})

	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

// runIDs returns the fixed ids for every run: the scenario id, then the
// same id suffixed "-2", "-3" and so on.
func runIDs(s *Scenario) []string {
	ids := make([]string, s.Runs)
	for i := range ids {
		if i == 0 {
			ids[i] = s.RunID
			continue
		}
		ids[i] = fmt.Sprintf("%s-%d", s.RunID, i+1)
	}
	return ids
}

func buildPass(s *Scenario, dir directory.Directory, st *store.Store) (*pipeline.Pass, error) {
	n := normalize.New(normalize.WithRegion(s.Region))

	var policies []merge.FieldPolicy
	for _, f := range s.Fields {
		kind := merge.Kind(f.Kind)
		if kind == "" {
			kind = merge.KindPlain
		}
		policies = append(policies, merge.FieldPolicy{Field: f.Field, Kind: kind})
	}
	resolver, err := merge.New(n, policies...)
	if err != nil {
		return nil, fmt.Errorf("invalid field policies: %w", err)
	}

	engine := diff.New(s.Target,
		classify.New(s.ActiveStatuses...),
		match.New(match.WithThreshold(s.Threshold), match.WithTiePolicy(match.TiePolicy(s.TiePolicy))),
		resolver,
		diff.WithSuspendOrphans(s.SuspendOrphans),
	)

	return &pipeline.Pass{
		Name:       s.Name,
		Source:     records(s.Canonical),
		Directory:  dir,
		Normalizer: n,
		Engine:     engine,
		Pacer:      executor.NoPacer{},
		Ledger:     st.Ledger(s.Target),
	}, nil
}

// records is a directory.Source over a fixed extract.
type records []model.RawRecord

func (r records) FetchCanonical(ctx context.Context) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(r), nil
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/roster/internal/model"
)

// Snapshot captures the observable outcome of a scenario: every run's
// report counters and failures, and the final directory state. Timestamps
// and snapshot hashes are left out.
type Snapshot struct {
	ScenarioName string
	Runs         []map[string]any
	Downstream   []model.DownstreamEntity
}

// NewSnapshot builds the snapshot for a finished scenario.
func NewSnapshot(name string, result *Result) *Snapshot {
	s := &Snapshot{ScenarioName: name, Downstream: result.Downstream}
	for _, out := range result.Outcomes {
		rep := out.Report
		failures := make([]any, len(rep.Failures))
		for i, f := range rep.Failures {
			fm := map[string]any{
				"entity_id":   f.EntityID,
				"action_kind": string(f.ActionKind),
				"error_kind":  string(f.ErrorKind),
				"message":     f.Message,
			}
			if f.DownstreamID != "" {
				fm["downstream_id"] = f.DownstreamID
			}
			failures[i] = fm
		}
		s.Runs = append(s.Runs, map[string]any{
			"run_id":    rep.RunID,
			"created":   rep.Created,
			"updated":   rep.Updated,
			"suspended": rep.Suspended,
			"removed":   rep.Removed,
			"ignored":   rep.Ignored,
			"skipped":   rep.Skipped,
			"review":    rep.Review,
			"orphans":   rep.Orphans,
			"cancelled": rep.Cancelled,
			"failures":  failures,
		})
	}
	return s
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	runs := make([]any, len(s.Runs))
	for i, r := range s.Runs {
		runs[i] = r
	}
	downstream := make([]any, len(s.Downstream))
	for i, d := range s.Downstream {
		downstream[i] = map[string]any{
			"downstream_id": d.DownstreamID,
			"fields":        d.Fields,
			"match_keys":    d.MatchKeys,
			"suspended":     d.Suspended,
		}
	}
	return model.MarshalCanonical(map[string]any{
		"scenario_name": s.ScenarioName,
		"runs":          runs,
		"downstream":    downstream,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

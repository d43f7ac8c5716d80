package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/diff"
	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/testutil"
)

func testReport() *executor.Report {
	return &executor.Report{
		RunID:      "run-1",
		Pair:       "acs",
		StartedAt:  testutil.Epoch,
		FinishedAt: testutil.Epoch.Add(2 * time.Second),
		Created:    4,
		Updated:    1,
		Skipped:    2,
		Failures: []executor.Failure{
			{EntityID: "E3", ActionKind: model.ActionCreate, ErrorKind: directory.KindTransient},
			{EntityID: "E7", ActionKind: model.ActionRemove, ErrorKind: directory.KindNotFound},
		},
		Cancelled: true,
	}
}

func TestObserveReport(t *testing.T) {
	r := NewRecorder()
	r.ObserveReport(testReport())

	assert.Equal(t, 4.0, promtest.ToFloat64(r.Actions.WithLabelValues("acs", "create", OutcomeSucceeded)))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.Actions.WithLabelValues("acs", "create", OutcomeFailed)))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.Actions.WithLabelValues("acs", "remove", OutcomeFailed)))
	assert.Equal(t, 2.0, promtest.ToFloat64(r.Actions.WithLabelValues("acs", "any", OutcomeSkipped)))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.Failures.WithLabelValues("acs", "transient")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.Cancelled.WithLabelValues("acs")))
	assert.Equal(t, float64(testutil.Epoch.Add(2*time.Second).Unix()), promtest.ToFloat64(r.LastRun.WithLabelValues("acs")))
}

func TestObservePlan(t *testing.T) {
	r := NewRecorder()
	c1, c2 := model.CanonicalEntity{ExternalID: "E1", FullName: "A"}, model.CanonicalEntity{ExternalID: "E2", FullName: "B"}
	create1, err := model.NewCreate("acs", c1)
	require.NoError(t, err)
	create2, err := model.NewCreate("acs", c2)
	require.NoError(t, err)

	plan := &diff.Plan{
		Target:  "acs",
		Create:  []model.Action{create1, create2},
		Orphans: []string{"d9"},
		Review:  []match.Tie{{ExternalID: "E5"}},
	}
	r.ObservePlan("acs", plan)

	assert.Equal(t, 2.0, promtest.ToFloat64(r.PlannedActions.WithLabelValues("acs", "create")))
	assert.Equal(t, 0.0, promtest.ToFloat64(r.PlannedActions.WithLabelValues("acs", "remove")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.Orphans.WithLabelValues("acs")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.ReviewQueue.WithLabelValues("acs")))
}

func TestObserveIssues(t *testing.T) {
	r := NewRecorder()
	r.ObserveIssues("acs", 0)
	r.ObserveIssues("acs", 3)

	assert.Equal(t, 3.0, promtest.ToFloat64(r.ValidationIssues.WithLabelValues("acs")))
}

func TestWriteToTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveReport(testReport())

	path := filepath.Join(t.TempDir(), "roster.prom")
	require.NoError(t, r.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `roster_actions_total{kind="create",outcome="succeeded",pair="acs"} 4`)
	assert.Contains(t, string(data), "roster_run_duration_seconds_count")
}

func TestWriteToTextfileBadPath(t *testing.T) {
	err := NewRecorder().WriteToTextfile(filepath.Join(t.TempDir(), "missing", "roster.prom"))
	assert.Error(t, err)
}

package diff

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/classify"
	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/merge"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/normalize"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	r, err := merge.New(nil)
	require.NoError(t, err)
	return New("acs", classify.New(), match.New(), r, opts...)
}

func ivanov() model.CanonicalEntity {
	return model.CanonicalEntity{
		ExternalID: "E1",
		FullName:   "Ivanov Ivan Ivanovich",
		Phone:      "+79991234567",
		StatusRaw:  "Active",
	}
}

// fixture is a canonical and downstream snapshot exercising every list.
func fixture() ([]model.CanonicalEntity, []model.DownstreamEntity) {
	canonical := []model.CanonicalEntity{
		ivanov(),
		{ExternalID: "E2", FullName: "Petrov Petr", Phone: "+79990000002", StatusRaw: "active"},
		{ExternalID: "E3", FullName: "Sidorov Sidor", Phone: "+79990000003", StatusRaw: "expelled"},
		{ExternalID: "E4", FullName: "Smirnova Anna", StatusRaw: "graduated"},
		{ExternalID: "E5", FullName: "Kuznetsov Oleg", StatusRaw: "active"},
		{
			ExternalID: "G1", FullName: "Ivanova Maria", Phone: "+79997654321", StatusRaw: "active",
			Relationship: &model.Relationship{CounterpartID: "E1", CounterpartPhone: "+79991234567"},
		},
	}
	downstream := []model.DownstreamEntity{
		{DownstreamID: "d2", MatchKeys: []string{"E2"}, Fields: map[string]string{
			model.FieldFullName: "Petrov Petr", model.FieldPhone: "+79991111111",
		}},
		{DownstreamID: "d3", MatchKeys: []string{"E3"}, Fields: map[string]string{model.FieldFullName: "Sidorov Sidor"}},
		{DownstreamID: "d4", Fields: map[string]string{model.FieldFullName: "Smirnova Anna"}},
		{DownstreamID: "d9", MatchKeys: []string{"X9"}, Fields: map[string]string{model.FieldFullName: "Old Record"}},
	}
	return canonical, downstream
}

// TestDiffGolden tests the full plan against a golden snapshot.
func TestDiffGolden(t *testing.T) {
	canonical, downstream := fixture()

	plan, err := newEngine(t).Diff(context.Background(), canonical, downstream)
	require.NoError(t, err)

	data, err := plan.MarshalCanonical()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "mixed_plan", data)
}

// TestDiffLists tests list membership and ordering without the fixture file.
func TestDiffLists(t *testing.T) {
	canonical, downstream := fixture()

	plan, err := newEngine(t).Diff(context.Background(), canonical, downstream)
	require.NoError(t, err)

	ids := func(actions []model.Action) []string {
		var out []string
		for _, a := range actions {
			out = append(out, a.EntityID())
		}
		return out
	}
	assert.Equal(t, []string{"E1", "G1"}, ids(plan.Create))
	assert.Equal(t, []string{"E2"}, ids(plan.Update))
	assert.Equal(t, []string{"E4"}, ids(plan.Suspend))
	assert.Equal(t, []string{"E3"}, ids(plan.Remove))
	assert.Equal(t, []string{"d9"}, plan.Orphans)
	assert.Equal(t, []string{"E5"}, plan.Ignored)
	assert.Equal(t, model.RoleDependent, plan.Create[1].Canonical.Role)

	kinds := make([]model.ActionKind, 0, plan.Len())
	for _, a := range plan.Actions() {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []model.ActionKind{
		model.ActionCreate, model.ActionCreate, model.ActionUpdate, model.ActionSuspend, model.ActionRemove,
	}, kinds)
	assert.Equal(t, 2, plan.Counts()[model.ActionCreate])
	assert.NotEmpty(t, plan.SnapshotHash)
}

// TestDiffEndToEndCreate tests a single new entity against an empty pool.
func TestDiffEndToEndCreate(t *testing.T) {
	n := normalize.New()
	c, issues, err := n.Normalize(model.RawRecord{
		ExternalID: "E1",
		FullName:   "Ivanov Ivan Ivanovich",
		Phone:      "+7 999 123-45-67",
		Status:     "Active",
	})
	require.NoError(t, err)
	require.Empty(t, issues)

	plan, err := newEngine(t).Diff(context.Background(), []model.CanonicalEntity{c}, nil)
	require.NoError(t, err)

	require.Len(t, plan.Create, 1)
	assert.Equal(t, 1, plan.Len())
	assert.Equal(t, "+79991234567", plan.Create[0].Canonical.Phone)
	assert.Equal(t, model.MustCreateKey("acs", c), plan.Create[0].IdempotencyKey)
}

// TestDiffEndToEndUpdate tests that only the changed phone is patched.
func TestDiffEndToEndUpdate(t *testing.T) {
	downstream := []model.DownstreamEntity{{
		DownstreamID: "d1",
		MatchKeys:    []string{"E1"},
		Fields:       map[string]string{model.FieldPhone: "+79991111111"},
	}}

	plan, err := newEngine(t).Diff(context.Background(), []model.CanonicalEntity{ivanov()}, downstream)
	require.NoError(t, err)

	require.Len(t, plan.Update, 1)
	assert.Equal(t, 1, plan.Len())
	assert.Equal(t, "d1", plan.Update[0].DownstreamID)
	assert.Equal(t, model.Patch{model.FieldPhone: "+79991234567"}, plan.Update[0].Patch)
}

// TestDiffIdempotentRerun tests that applying a plan and diffing again
// proposes nothing.
func TestDiffIdempotentRerun(t *testing.T) {
	ctx := context.Background()
	canonical, downstream := fixture()
	dir := directory.NewMemory("acs", downstream...)
	e := newEngine(t)

	plan, err := e.Diff(ctx, canonical, dir.Snapshot())
	require.NoError(t, err)
	require.False(t, plan.Empty())

	for _, a := range plan.Create {
		_, err := dir.Create(ctx, a.Canonical.Payload())
		require.NoError(t, err)
	}
	for _, a := range plan.Update {
		require.NoError(t, dir.Update(ctx, a.DownstreamID, a.Patch))
	}
	for _, a := range plan.Suspend {
		require.NoError(t, dir.Suspend(ctx, a.DownstreamID))
	}
	for _, a := range plan.Remove {
		require.NoError(t, dir.Remove(ctx, a.DownstreamID))
	}

	again, err := e.Diff(ctx, canonical, dir.Snapshot())
	require.NoError(t, err)
	assert.Empty(t, again.Create)
	assert.Empty(t, again.Update)
	assert.Empty(t, again.Suspend, "already suspended records are not suspended twice")
	assert.Empty(t, again.Remove)
}

// TestDiffRemovableNeverCreated tests that an unmatched removable entity
// produces no action at all.
func TestDiffRemovableNeverCreated(t *testing.T) {
	c := ivanov()
	c.StatusRaw = "expelled"

	plan, err := newEngine(t).Diff(context.Background(), []model.CanonicalEntity{c}, nil)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

// TestDiffReactivatesSuspended tests the reactivation patch.
func TestDiffReactivatesSuspended(t *testing.T) {
	c := ivanov()
	downstream := []model.DownstreamEntity{{
		DownstreamID: "d1",
		MatchKeys:    []string{"E1"},
		Fields:       map[string]string{model.FieldPhone: c.Phone},
		Suspended:    true,
	}}

	plan, err := newEngine(t).Diff(context.Background(), []model.CanonicalEntity{c}, downstream)
	require.NoError(t, err)
	require.Len(t, plan.Update, 1)
	assert.Equal(t, model.Patch{model.FieldSuspended: "false"}, plan.Update[0].Patch)
}

// TestDiffSuspendOrphans tests the opt-in orphan suspension.
func TestDiffSuspendOrphans(t *testing.T) {
	downstream := []model.DownstreamEntity{
		{DownstreamID: "d1", Fields: map[string]string{model.FieldFullName: "Nobody Known"}},
		{DownstreamID: "d2", Fields: map[string]string{model.FieldFullName: "Already Off"}, Suspended: true},
	}

	plan, err := newEngine(t, WithSuspendOrphans(true)).Diff(context.Background(), nil, downstream)
	require.NoError(t, err)

	assert.Equal(t, []string{"d1", "d2"}, plan.Orphans)
	require.Len(t, plan.Suspend, 1)
	assert.Equal(t, "d1", plan.Suspend[0].DownstreamID)
	assert.Nil(t, plan.Suspend[0].Canonical)
}

// TestDiffTieGoesToReview tests that ties surface in the plan.
func TestDiffTieGoesToReview(t *testing.T) {
	r, err := merge.New(nil)
	require.NoError(t, err)
	e := New("acs", classify.New(), match.New(match.WithTiePolicy(match.TieReview)), r)

	downstream := []model.DownstreamEntity{
		{DownstreamID: "d1", Fields: map[string]string{model.FieldFullName: "Ivanov Ivan Ivanovich"}},
		{DownstreamID: "d2", Fields: map[string]string{model.FieldFullName: "Ivanov Ivan Ivanovich"}},
	}
	plan, err := e.Diff(context.Background(), []model.CanonicalEntity{ivanov()}, downstream)
	require.NoError(t, err)

	require.Len(t, plan.Review, 1)
	assert.Equal(t, []string{"d1", "d2"}, plan.Review[0].Candidates)
	require.Len(t, plan.Create, 1, "withheld tie is treated as unmatched")
}

// TestDiffDoesNotMutateInput tests that canonical roles are assigned on copies.
func TestDiffDoesNotMutateInput(t *testing.T) {
	canonical, downstream := fixture()

	_, err := newEngine(t).Diff(context.Background(), canonical, downstream)
	require.NoError(t, err)

	for _, c := range canonical {
		assert.Equal(t, model.RoleNone, c.Role, c.ExternalID)
	}
}

// TestDiffCancelled tests that a cancelled context aborts the diff.
func TestDiffCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canonical, downstream := fixture()

	_, err := newEngine(t).Diff(ctx, canonical, downstream)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestDiffDeterministicAcrossWorkers tests that parallelism does not change
// the plan.
func TestDiffDeterministicAcrossWorkers(t *testing.T) {
	canonical, downstream := fixture()

	one, err := newEngine(t, WithWorkers(1)).Diff(context.Background(), canonical, downstream)
	require.NoError(t, err)
	many, err := newEngine(t, WithWorkers(16)).Diff(context.Background(), canonical, downstream)
	require.NoError(t, err)

	a, err := one.MarshalCanonical()
	require.NoError(t, err)
	b, err := many.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

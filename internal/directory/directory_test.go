package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/model"
)

// TestKindOf tests error classification.
func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindTransient, KindOf(context.DeadlineExceeded))

	wrapped := fmt.Errorf("while syncing: %w", NewError(KindNotFound, OpUpdate, "d1", nil))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsTransient(wrapped))

	err := Errorf(KindDuplicateKey, OpCreate, "E1", "mirrored by %s", "d9")
	assert.Equal(t, "create: duplicate_key (id=E1): mirrored by d9", err.Error())
	assert.True(t, IsDuplicateKey(err))
}

// TestMemoryLifecycle tests create, update, suspend and remove.
func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("acs")

	id, err := m.Create(ctx, map[string]string{
		model.FieldExternalID: "E1",
		model.FieldFullName:   "Ivanov Ivan",
		model.FieldPhone:      "+79991234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "acs-1", id)

	snap, err := m.FetchSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, []string{"E1"}, snap[0].MatchKeys)
	assert.Equal(t, "+79991234567", snap[0].Fields[model.FieldPhone])

	require.NoError(t, m.Update(ctx, id, model.Patch{model.FieldPhone: "+79990000000"}))
	require.NoError(t, m.Suspend(ctx, id))
	snap = m.Snapshot()
	assert.Equal(t, "+79990000000", snap[0].Fields[model.FieldPhone])
	assert.True(t, snap[0].Suspended)

	require.NoError(t, m.Update(ctx, id, model.Patch{model.FieldSuspended: "false"}))
	snap = m.Snapshot()
	assert.False(t, snap[0].Suspended)
	assert.NotContains(t, snap[0].Fields, model.FieldSuspended)

	require.NoError(t, m.Remove(ctx, id))
	assert.Empty(t, m.Snapshot())

	assert.Equal(t, []Call{
		{Op: OpCreate, ID: id},
		{Op: OpUpdate, ID: id},
		{Op: OpSuspend, ID: id},
		{Op: OpUpdate, ID: id},
		{Op: OpRemove, ID: id},
	}, m.Calls())
}

// TestMemoryErrors tests the typed failures.
func TestMemoryErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("acs", model.DownstreamEntity{
		DownstreamID: "acs-1",
		Fields:       map[string]string{model.FieldFullName: "Ivanov Ivan"},
		MatchKeys:    []string{"E1"},
	})

	_, err := m.Create(ctx, map[string]string{model.FieldExternalID: "E1", model.FieldFullName: "Ivanov Ivan"})
	assert.True(t, IsDuplicateKey(err))

	_, err = m.Create(ctx, map[string]string{model.FieldExternalID: "E2"})
	assert.Equal(t, KindValidation, KindOf(err))

	id, err := m.Create(ctx, map[string]string{model.FieldExternalID: "E2", model.FieldFullName: "Petrov Petr"})
	require.NoError(t, err)
	assert.Equal(t, "acs-2", id, "seeded ids are skipped")

	assert.True(t, IsNotFound(m.Update(ctx, "nope", model.Patch{"a": "b"})))
	assert.True(t, IsNotFound(m.Suspend(ctx, "nope")))
	assert.True(t, IsNotFound(m.Remove(ctx, "nope")))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.FetchSnapshot(cancelled)
	assert.True(t, IsSourceUnavailable(err))
}

// TestMemorySnapshotIsACopy tests that callers cannot mutate the directory.
func TestMemorySnapshotIsACopy(t *testing.T) {
	m := NewMemory("acs", model.DownstreamEntity{DownstreamID: "d1", Fields: map[string]string{"a": "1"}})

	snap := m.Snapshot()
	snap[0].Fields["a"] = "2"

	assert.Equal(t, "1", m.Snapshot()[0].Fields["a"])
}

// TestFileRoundTrip tests that mutations are persisted and reloaded.
func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lms.json")

	f, err := OpenFile("lms", path)
	require.NoError(t, err)
	assert.Empty(t, f.Snapshot())

	id, err := f.Create(ctx, map[string]string{model.FieldExternalID: "E1", model.FieldFullName: "Ivanov Ivan"})
	require.NoError(t, err)
	require.NoError(t, f.Suspend(ctx, id))

	reloaded, err := OpenFile("lms", path)
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, id, snap[0].DownstreamID)
	assert.True(t, snap[0].Suspended)
	assert.Equal(t, []string{"E1"}, snap[0].MatchKeys)
}

// TestFileRejectsGarbage tests that an unreadable snapshot is fatal.
func TestFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFile("bad", path)
	assert.True(t, IsSourceUnavailable(err))
}

// failing returns err from every mutation.
type failing struct {
	*Memory
	err   error
	calls int
}

func (f *failing) Update(ctx context.Context, id string, patch model.Patch) error {
	f.calls++
	return f.err
}

// TestBreakerOpensOnTransient tests that consecutive transient failures
// open the breaker and later calls fail fast.
func TestBreakerOpensOnTransient(t *testing.T) {
	ctx := context.Background()
	inner := &failing{Memory: NewMemory("pos"), err: NewError(KindTransient, OpUpdate, "", errors.New("503"))}
	b := NewBreaker(inner, BreakerConfig{FailureThreshold: 2, Timeout: time.Hour})

	for i := 0; i < 2; i++ {
		assert.True(t, IsTransient(b.Update(ctx, "d1", model.Patch{"a": "b"})))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Update(ctx, "d1", model.Patch{"a": "b"})
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker does not reach the directory")
}

// TestBreakerIgnoresTerminalErrors tests that NotFound does not trip.
func TestBreakerIgnoresTerminalErrors(t *testing.T) {
	ctx := context.Background()
	inner := &failing{Memory: NewMemory("pos"), err: NewError(KindNotFound, OpUpdate, "d1", nil)}
	b := NewBreaker(inner, BreakerConfig{FailureThreshold: 1, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		assert.True(t, IsNotFound(b.Update(ctx, "d1", model.Patch{"a": "b"})))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 3, inner.calls)
}

// TestBreakerPassesThrough tests the happy path.
func TestBreakerPassesThrough(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("pos")
	b := NewBreaker(m, DefaultBreakerConfig)

	id, err := b.Create(ctx, map[string]string{model.FieldExternalID: "E1", model.FieldFullName: "A B"})
	require.NoError(t, err)
	require.NoError(t, b.Suspend(ctx, id))
	require.NoError(t, b.Remove(ctx, id))
	assert.Equal(t, "pos", b.Name())
	assert.Len(t, m.Calls(), 3)
}

package directory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/roster/internal/model"
)

// Call records one mutating call made against a Memory directory.
type Call struct {
	Op string
	ID string
}

// Memory is an in-process Directory.
//
// Created records get ids "<name>-<n>" and carry their external_id as the
// only match key, so a rerun against the updated snapshot matches exactly.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	name string

	mu      sync.Mutex
	records []model.DownstreamEntity
	seq     int
	calls   []Call
}

// NewMemory creates a Memory directory seeded with records.
// The seed slice is copied.
func NewMemory(name string, records ...model.DownstreamEntity) *Memory {
	m := &Memory{name: name}
	for _, r := range records {
		m.records = append(m.records, cloneEntity(r))
	}
	return m
}

// Name implements Directory.
func (m *Memory) Name() string { return m.name }

// FetchSnapshot implements Directory. The result is a deep copy.
func (m *Memory) FetchSnapshot(ctx context.Context) ([]model.DownstreamEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(KindSourceUnavailable, OpFetch, "", err)
	}
	return m.Snapshot(), nil
}

// Snapshot returns a deep copy of the current records in insertion order.
func (m *Memory) Snapshot() []model.DownstreamEntity {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.DownstreamEntity, len(m.records))
	for i, r := range m.records {
		out[i] = cloneEntity(r)
	}
	return out
}

// Calls returns every mutating call accepted so far, in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Create implements Directory.
func (m *Memory) Create(ctx context.Context, payload map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ext := payload[model.FieldExternalID]
	if payload[model.FieldFullName] == "" {
		return "", Errorf(KindValidation, OpCreate, ext, "full_name is required")
	}
	if ext != "" {
		for _, r := range m.records {
			if r.HasMatchKey(ext) {
				return "", Errorf(KindDuplicateKey, OpCreate, ext, "external id already mirrored by %s", r.DownstreamID)
			}
		}
	}

	var id string
	for {
		m.seq++
		id = fmt.Sprintf("%s-%d", m.name, m.seq)
		if m.find(id) < 0 {
			break
		}
	}
	rec := model.DownstreamEntity{DownstreamID: id, Fields: maps.Clone(payload)}
	if rec.Fields == nil {
		rec.Fields = map[string]string{}
	}
	if ext != "" {
		rec.MatchKeys = []string{ext}
	}
	m.records = append(m.records, rec)
	m.calls = append(m.calls, Call{Op: OpCreate, ID: id})
	return id, nil
}

// Update implements Directory. A "suspended" entry in the patch toggles the
// suspension flag instead of being stored as a field.
func (m *Memory) Update(ctx context.Context, id string, patch model.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(id)
	if i < 0 {
		return NewError(KindNotFound, OpUpdate, id, nil)
	}
	rec := &m.records[i]
	for k, v := range patch {
		if k == model.FieldSuspended {
			rec.Suspended = v == "true"
			continue
		}
		rec.Fields[k] = v
	}
	m.calls = append(m.calls, Call{Op: OpUpdate, ID: id})
	return nil
}

// Suspend implements Directory.
func (m *Memory) Suspend(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(id)
	if i < 0 {
		return NewError(KindNotFound, OpSuspend, id, nil)
	}
	m.records[i].Suspended = true
	m.calls = append(m.calls, Call{Op: OpSuspend, ID: id})
	return nil
}

// Remove implements Directory.
func (m *Memory) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(id)
	if i < 0 {
		return NewError(KindNotFound, OpRemove, id, nil)
	}
	m.records = slices.Delete(m.records, i, i+1)
	m.calls = append(m.calls, Call{Op: OpRemove, ID: id})
	return nil
}

// find returns the index of id or -1. Caller holds mu.
func (m *Memory) find(id string) int {
	return slices.IndexFunc(m.records, func(r model.DownstreamEntity) bool {
		return r.DownstreamID == id
	})
}

func cloneEntity(e model.DownstreamEntity) model.DownstreamEntity {
	e.Fields = maps.Clone(e.Fields)
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.MatchKeys = slices.Clone(e.MatchKeys)
	return e
}

package testutil

import "sync"

// FixedRunIDs returns predetermined run ids for testing.
//
// This enables deterministic test execution and golden report comparison.
// When the list is exhausted the last id is repeated; an empty list always
// yields "test-run-default".
//
// Thread-safety: FixedRunIDs is safe for concurrent use via internal mutex.
type FixedRunIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedRunIDs creates a generator that returns ids in order.
//
// The id is typically set in the scenario YAML:
//
//	run_id: "test-run-0001"
func NewFixedRunIDs(ids ...string) *FixedRunIDs {
	return &FixedRunIDs{ids: ids}
}

// Generate returns the next run id.
//
// Implements pipeline.RunIDGenerator.
func (g *FixedRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.ids) == 0 {
		return "test-run-default"
	}
	if g.idx >= len(g.ids) {
		return g.ids[len(g.ids)-1]
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

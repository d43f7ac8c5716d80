package executor

import (
	"context"
	"sync"
)

// KeyLedger remembers create idempotency keys that already produced a
// downstream record.
//
// The executor consults the ledger before issuing a create and records the
// key only after the directory acknowledged it, so a failed create can be
// retried by a later run. A hit only counts while the recorded record is
// still in the snapshot the plan was built on; keys of records that are
// gone are forgotten.
type KeyLedger interface {
	// Lookup returns the downstream id recorded for key, if any.
	Lookup(ctx context.Context, key string) (downstreamID string, ok bool, err error)

	// Record stores key after a successful create.
	Record(ctx context.Context, key, downstreamID string) error

	// Forget drops every key recorded for downstreamID.
	Forget(ctx context.Context, downstreamID string) error
}

// MemoryLedger is a KeyLedger scoped to one process.
//
// Thread-safety: safe for concurrent use.
type MemoryLedger struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{keys: make(map[string]string)}
}

// Lookup implements KeyLedger.
func (l *MemoryLedger) Lookup(_ context.Context, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.keys[key]
	return id, ok, nil
}

// Record implements KeyLedger.
func (l *MemoryLedger) Record(_ context.Context, key, downstreamID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[key] = downstreamID
	return nil
}

// Forget implements KeyLedger.
func (l *MemoryLedger) Forget(_ context.Context, downstreamID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, id := range l.keys {
		if id == downstreamID {
			delete(l.keys, k)
		}
	}
	return nil
}

// Len returns the number of recorded keys.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

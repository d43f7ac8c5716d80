package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/roster/internal/executor"
)

// Ledger is an executor.KeyLedger persisted in the store and scoped to one
// target directory.
type Ledger struct {
	store  *Store
	target string
	window time.Duration
	now    func() time.Time
}

var _ executor.KeyLedger = (*Ledger)(nil)

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithWindow bounds lookups to keys recorded within d of now. Zero keeps
// keys forever.
func WithWindow(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.window = d }
}

// WithLedgerClock replaces the clock used for recording and windowing.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// Ledger returns the create-key ledger for target.
func (s *Store) Ledger(target string, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: s, target: target, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lookup implements executor.KeyLedger.
func (l *Ledger) Lookup(ctx context.Context, key string) (string, bool, error) {
	var id, recorded string
	err := l.store.db.QueryRowContext(ctx, `
		SELECT downstream_id, recorded_at FROM create_keys
		WHERE target = ? AND key = ?
	`, l.target, key).Scan(&id, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup create key: %w", err)
	}

	if l.window > 0 {
		at, err := parseTime(recorded)
		if err != nil {
			return "", false, err
		}
		if l.now().Sub(at) > l.window {
			return "", false, nil
		}
	}
	return id, true, nil
}

// Record implements executor.KeyLedger. The first downstream id recorded
// for a key wins.
func (l *Ledger) Record(ctx context.Context, key, downstreamID string) error {
	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO create_keys (target, key, downstream_id, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(target, key) DO NOTHING
	`, l.target, key, downstreamID, formatTime(l.now()))
	if err != nil {
		return fmt.Errorf("record create key: %w", err)
	}
	return nil
}

// Forget implements executor.KeyLedger.
func (l *Ledger) Forget(ctx context.Context, downstreamID string) error {
	_, err := l.store.db.ExecContext(ctx, `
		DELETE FROM create_keys WHERE target = ? AND downstream_id = ?
	`, l.target, downstreamID)
	if err != nil {
		return fmt.Errorf("forget create keys: %w", err)
	}
	return nil
}

// Prune deletes keys recorded before cutoff and returns how many were
// removed.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.store.db.ExecContext(ctx, `
		DELETE FROM create_keys WHERE target = ? AND recorded_at < ?
	`, l.target, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune create keys: %w", err)
	}
	return res.RowsAffected()
}

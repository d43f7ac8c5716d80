package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/roster/internal/executor"
)

// ErrDuplicateRun is returned when a run id was already saved.
var ErrDuplicateRun = errors.New("run already saved")

// SaveReport writes a finished run and its failures in one transaction.
//
// Runs are append-only: saving a run id that already exists returns
// ErrDuplicateRun and leaves the stored run untouched.
func (s *Store) SaveReport(ctx context.Context, r *executor.Report) error {
	if r == nil || r.RunID == "" {
		return fmt.Errorf("save report: missing run id")
	}

	data, err := marshalReport(r)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, pair, engine_version, started_at, finished_at,
			created, updated, suspended, removed, ignored, skipped,
			review, orphans, failed, cancelled, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID, r.Pair, r.EngineVersion, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Created, r.Updated, r.Suspended, r.Removed, r.Ignored, r.Skipped,
		r.Review, r.Orphans, len(r.Failures), r.Cancelled, data,
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("save report %s: %w", r.RunID, ErrDuplicateRun)
		}
		return fmt.Errorf("insert run: %w", err)
	}

	for i, f := range r.Failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO failures (run_id, seq, entity_id, downstream_id, action_kind, error_kind, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.RunID, i, f.EntityID, f.DownstreamID, string(f.ActionKind), string(f.ErrorKind), f.Message)
		if err != nil {
			return fmt.Errorf("insert failure %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

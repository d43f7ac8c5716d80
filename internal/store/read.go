package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/model"
)

// RunSummary is one row of the run list.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	Pair          string    `json:"pair"`
	EngineVersion string    `json:"engine_version"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	Suspended     int       `json:"suspended"`
	Removed       int       `json:"removed"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Cancelled     bool      `json:"cancelled"`
}

// RunFilter narrows ListRuns. Zero values mean no restriction.
type RunFilter struct {
	Pair  string
	Limit int
}

// ListRuns returns run summaries, newest first.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]RunSummary, error) {
	query := `
		SELECT run_id, pair, engine_version, started_at, finished_at,
		       created, updated, suspended, removed, skipped, failed, cancelled
		FROM runs
		WHERE (? = '' OR pair = ?)
		ORDER BY started_at DESC, run_id COLLATE BINARY DESC`
	args := []any{f.Pair, f.Pair}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &r.Pair, &r.EngineVersion, &started, &finished,
			&r.Created, &r.Updated, &r.Suspended, &r.Removed, &r.Skipped, &r.Failed, &r.Cancelled); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the stored report for runID, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (*executor.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return unmarshalReport(data)
}

// ReadFailures returns the failures of runID in reported order.
func (s *Store) ReadFailures(ctx context.Context, runID string) ([]executor.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, downstream_id, action_kind, error_kind, message
		FROM failures
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	failures := []executor.Failure{}
	for rows.Next() {
		var (
			f                   executor.Failure
			actionKind, errKind string
		)
		if err := rows.Scan(&f.EntityID, &f.DownstreamID, &actionKind, &errKind, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.ActionKind = model.ActionKind(actionKind)
		f.ErrorKind = directory.Kind(errKind)
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return failures, nil
}

// FailuresForEntity returns every recorded failure for an entity across
// runs, oldest run first.
func (s *Store) FailuresForEntity(ctx context.Context, entityID string) ([]executor.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.entity_id, f.downstream_id, f.action_kind, f.error_kind, f.message
		FROM failures f
		JOIN runs r ON r.run_id = f.run_id
		WHERE f.entity_id = ?
		ORDER BY r.started_at ASC, f.run_id COLLATE BINARY ASC, f.seq ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query entity failures: %w", err)
	}
	defer rows.Close()

	failures := []executor.Failure{}
	for rows.Next() {
		var (
			f                   executor.Failure
			actionKind, errKind string
		)
		if err := rows.Scan(&f.EntityID, &f.DownstreamID, &actionKind, &errKind, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.ActionKind = model.ActionKind(actionKind)
		f.ErrorKind = directory.Kind(errKind)
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity failures: %w", err)
	}
	return failures, nil
}

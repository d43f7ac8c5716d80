// Package executor applies a diff Plan to a downstream directory.
//
// Actions run one at a time in plan order. Each call is paced, isolated
// behind a recover boundary and recorded in the Report; a failing action
// never stops the run. The executor does not retry: transient failures are
// reported for the caller to act on.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/roster/internal/diff"
	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/model"
)

// Executor runs plans. The calls of a single Execute are strictly
// sequential.
type Executor struct {
	runID  string
	pacer  Pacer
	ledger KeyLedger
	now    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunID stamps reports and log lines with id.
func WithRunID(id string) Option {
	return func(e *Executor) { e.runID = id }
}

// WithPacer sets the pacer. Default NoPacer.
func WithPacer(p Pacer) Option {
	return func(e *Executor) {
		if p != nil {
			e.pacer = p
		}
	}
}

// WithLedger sets the idempotency key ledger. Default is a fresh
// MemoryLedger per Executor.
func WithLedger(l KeyLedger) Option {
	return func(e *Executor) {
		if l != nil {
			e.ledger = l
		}
	}
}

// WithClock sets the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		pacer:  NoPacer{},
		ledger: NewMemoryLedger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies plan to dir and returns the report. It never returns an
// error and never panics: every failure is a report entry.
//
// Cancellation is checked before each action. Once ctx is done the report
// so far is returned with Cancelled set; calls already issued are not
// rolled back.
func (e *Executor) Execute(ctx context.Context, plan *diff.Plan, dir directory.Directory) *Report {
	runID := e.runID
	rep := &Report{
		RunID:         runID,
		Pair:          plan.Target,
		EngineVersion: model.EngineVersion,
		StartedAt:     e.now().UTC(),
		Ignored:       len(plan.Ignored),
		Review:        len(plan.Review),
		Orphans:       len(plan.Orphans),
		Failures:      []Failure{},
	}
	defer func() { rep.FinishedAt = e.now().UTC() }()

	slog.Info("executing plan",
		"run_id", runID,
		"pair", plan.Target,
		"create", len(plan.Create),
		"update", len(plan.Update),
		"suspend", len(plan.Suspend),
		"remove", len(plan.Remove),
	)

	for _, a := range plan.Actions() {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}

		skip, err := e.precheck(ctx, plan, a)
		if err != nil {
			e.fail(rep, a, err)
			continue
		}
		if skip {
			rep.Skipped++
			continue
		}

		if err := e.pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				rep.Cancelled = true
				break
			}
			// The limiter refuses waits that would overrun the deadline.
			e.fail(rep, a, directory.NewError(directory.KindTransient, string(a.Kind), a.EntityID(), fmt.Errorf("pace: %w", err)))
			continue
		}

		if err := e.apply(ctx, a, dir); err != nil {
			e.fail(rep, a, err)
			continue
		}
		rep.succeed(a.Kind)
	}

	slog.Info("plan executed",
		"run_id", runID,
		"pair", plan.Target,
		"created", rep.Created,
		"updated", rep.Updated,
		"suspended", rep.Suspended,
		"removed", rep.Removed,
		"skipped", rep.Skipped,
		"failures", len(rep.Failures),
		"cancelled", rep.Cancelled,
	)
	return rep
}

// precheck decides whether an action is skipped without a call.
func (e *Executor) precheck(ctx context.Context, plan *diff.Plan, a model.Action) (bool, error) {
	switch a.Kind {
	case model.ActionUpdate:
		if a.Patch.Empty() {
			return true, nil
		}
	case model.ActionCreate:
		id, seen, err := e.ledger.Lookup(ctx, a.IdempotencyKey)
		if err != nil {
			return false, directory.NewError(directory.KindInternal, directory.OpCreate, a.EntityID(), fmt.Errorf("ledger lookup: %w", err))
		}
		if !seen {
			return false, nil
		}
		if plan.InSnapshot(id) {
			slog.Info("duplicate create skipped",
				"external_id", a.EntityID(),
				"downstream_id", id,
				"idempotency_key", a.IdempotencyKey,
			)
			return true, nil
		}
		if err := e.ledger.Forget(ctx, id); err != nil {
			return false, directory.NewError(directory.KindInternal, directory.OpCreate, a.EntityID(), fmt.Errorf("ledger forget: %w", err))
		}
		slog.Info("stale create key dropped",
			"external_id", a.EntityID(),
			"downstream_id", id,
		)
	}
	return false, nil
}

// apply issues one call inside a recover boundary.
func (e *Executor) apply(ctx context.Context, a model.Action, dir directory.Directory) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = directory.Errorf(directory.KindInternal, string(a.Kind), a.EntityID(), "panic: %v", r)
		}
	}()

	switch a.Kind {
	case model.ActionCreate:
		if a.Canonical == nil {
			return directory.Errorf(directory.KindValidation, directory.OpCreate, "", "create without canonical entity")
		}
		id, err := dir.Create(ctx, a.Canonical.Payload())
		if err != nil {
			return err
		}
		if err := e.ledger.Record(ctx, a.IdempotencyKey, id); err != nil {
			// The record exists downstream; only the ledger is behind.
			slog.Warn("failed to record idempotency key",
				"external_id", a.EntityID(),
				"downstream_id", id,
				"error", err,
			)
		}
		return nil
	case model.ActionUpdate:
		return dir.Update(ctx, a.DownstreamID, a.Patch)
	case model.ActionSuspend:
		return dir.Suspend(ctx, a.DownstreamID)
	case model.ActionRemove:
		if err := dir.Remove(ctx, a.DownstreamID); err != nil {
			return err
		}
		if err := e.ledger.Forget(ctx, a.DownstreamID); err != nil {
			slog.Warn("failed to forget create keys",
				"downstream_id", a.DownstreamID,
				"error", err,
			)
		}
		return nil
	default:
		return directory.Errorf(directory.KindInternal, string(a.Kind), a.EntityID(), "unknown action kind")
	}
}

func (e *Executor) fail(rep *Report, a model.Action, err error) {
	f := Failure{
		EntityID:     a.EntityID(),
		DownstreamID: a.DownstreamID,
		ActionKind:   a.Kind,
		ErrorKind:    directory.KindOf(err),
		Message:      err.Error(),
	}
	rep.Failures = append(rep.Failures, f)
	slog.Warn("action failed",
		"run_id", rep.RunID,
		"entity_id", f.EntityID,
		"action", string(f.ActionKind),
		"error_kind", string(f.ErrorKind),
		"error", f.Message,
	)
}

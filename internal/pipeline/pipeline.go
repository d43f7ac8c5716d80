package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/roster/internal/diff"
	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/metrics"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/normalize"
)

// Pass is everything one directory-pair run needs.
type Pass struct {
	Name string

	// SourceKey identifies the canonical source for sharing between
	// passes in RunAll. Passes with equal non-empty keys fetch once.
	SourceKey string

	Source     directory.Source
	Directory  directory.Directory
	Normalizer *normalize.Normalizer
	Engine     *diff.Engine
	Pacer      executor.Pacer
	Ledger     executor.KeyLedger
}

// ReportSink persists finished reports.
type ReportSink interface {
	SaveReport(ctx context.Context, r *executor.Report) error
}

// Outcome is the result of a pass.
type Outcome struct {
	Pair   string
	Plan   *diff.Plan
	Issues []normalize.Issue

	// Rejected counts canonical records dropped entirely.
	Rejected int

	// Report is nil for plan-only passes.
	Report *executor.Report
}

// Runner executes passes.
//
// Thread-safety: safe for concurrent use once constructed.
type Runner struct {
	runIDs  RunIDGenerator
	sink    ReportSink
	metrics *metrics.Recorder
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunIDs sets the run id generator. Defaults to UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(r *Runner) { r.runIDs = g }
}

// WithReportSink persists every executed report.
func WithReportSink(s ReportSink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithMetrics records plan and report metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock replaces the wall clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{runIDs: UUIDv7Generator{}, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan fetches both snapshots and computes the plan without touching the
// directory.
func (r *Runner) Plan(ctx context.Context, p *Pass) (*Outcome, error) {
	raw, err := p.Source.FetchCanonical(ctx)
	if err != nil {
		return nil, sourceUnavailable(p.Name, "canonical source", err)
	}
	return r.plan(ctx, p, raw)
}

// Run plans and executes one pass. The returned error is non-nil only for
// fatal problems before execution, or when the report could not be
// persisted; in the latter case the Outcome still carries the report.
func (r *Runner) Run(ctx context.Context, p *Pass) (*Outcome, error) {
	raw, err := p.Source.FetchCanonical(ctx)
	if err != nil {
		return nil, sourceUnavailable(p.Name, "canonical source", err)
	}
	return r.run(ctx, p, raw)
}

// RunAll runs passes concurrently and returns their outcomes in input
// order. A fatal error in one pass does not cancel the others; all fatal
// errors are joined.
func (r *Runner) RunAll(ctx context.Context, passes []*Pass) ([]*Outcome, error) {
	var (
		outcomes = make([]*Outcome, len(passes))
		errs     = make([]error, len(passes))
		cache    = newSnapshotCache()
		g        errgroup.Group
	)

	for i, p := range passes {
		g.Go(func() error {
			raw, err := cache.fetch(ctx, p)
			if err != nil {
				errs[i] = sourceUnavailable(p.Name, "canonical source", err)
				return nil
			}
			outcomes[i], errs[i] = r.run(ctx, p, raw)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, joinErrors(errs)
}

func (r *Runner) run(ctx context.Context, p *Pass, raw []model.RawRecord) (*Outcome, error) {
	runID := r.runIDs.Generate()

	out, err := r.plan(ctx, p, raw)
	if err != nil {
		return nil, err
	}

	ex := executor.New(
		executor.WithRunID(runID),
		executor.WithPacer(p.Pacer),
		executor.WithLedger(p.Ledger),
		executor.WithClock(r.now),
	)
	rep := ex.Execute(ctx, out.Plan, p.Directory)
	rep.Pair = p.Name
	out.Report = rep

	if r.metrics != nil {
		r.metrics.ObserveReport(rep)
	}

	if r.sink != nil {
		// The report is flushed even when the run was cancelled.
		if err := r.sink.SaveReport(context.WithoutCancel(ctx), rep); err != nil {
			slog.Error("report not saved", "pair", p.Name, "run_id", runID, "error", err)
			return out, fmt.Errorf("pair %s: save report: %w", p.Name, err)
		}
	}
	return out, nil
}

func (r *Runner) plan(ctx context.Context, p *Pass, raw []model.RawRecord) (*Outcome, error) {
	downstream, err := p.Directory.FetchSnapshot(ctx)
	if err != nil {
		return nil, sourceUnavailable(p.Name, "downstream snapshot", err)
	}

	canonical, issues, rejected := NormalizeAll(p.Normalizer, raw)

	plan, err := p.Engine.Diff(ctx, canonical, downstream)
	if err != nil {
		return nil, fmt.Errorf("pair %s: diff: %w", p.Name, err)
	}

	slog.Info("plan computed",
		"pair", p.Name,
		"canonical", len(canonical),
		"downstream", len(downstream),
		"issues", len(issues),
		"rejected", rejected,
		"create", len(plan.Create),
		"update", len(plan.Update),
		"suspend", len(plan.Suspend),
		"remove", len(plan.Remove),
		"review", len(plan.Review),
		"orphans", len(plan.Orphans),
		"snapshot_hash", plan.SnapshotHash,
	)

	if r.metrics != nil {
		r.metrics.ObservePlan(p.Name, plan)
		r.metrics.ObserveIssues(p.Name, len(issues))
	}

	return &Outcome{Pair: p.Name, Plan: plan, Issues: issues, Rejected: rejected}, nil
}

// NormalizeAll normalizes raw records in order. Rejected records and
// duplicate external ids (after the first) are dropped and reported as
// issues.
func NormalizeAll(n *normalize.Normalizer, raw []model.RawRecord) ([]model.CanonicalEntity, []normalize.Issue, int) {
	var (
		canonical = make([]model.CanonicalEntity, 0, len(raw))
		issues    []normalize.Issue
		rejected  int
		seen      = make(map[string]bool, len(raw))
	)

	for _, rec := range raw {
		c, recIssues, err := n.Normalize(rec)
		issues = append(issues, recIssues...)
		if err != nil {
			rejected++
			slog.Warn("canonical record rejected", "external_id", rec.ExternalID, "error", err)
			issues = append(issues, normalize.Issue{
				ExternalID: rec.ExternalID,
				Field:      "record",
				Reason:     err.Error(),
			})
			continue
		}
		if seen[c.ExternalID] {
			rejected++
			slog.Warn("duplicate external id dropped", "external_id", c.ExternalID)
			issues = append(issues, normalize.Issue{
				ExternalID: c.ExternalID,
				Field:      "external_id",
				Value:      c.ExternalID,
				Reason:     "duplicate external id",
			})
			continue
		}
		seen[c.ExternalID] = true
		canonical = append(canonical, c)
	}
	return canonical, issues, rejected
}

func sourceUnavailable(pair, what string, err error) error {
	if directory.IsSourceUnavailable(err) {
		return fmt.Errorf("pair %s: %s: %w", pair, what, err)
	}
	return fmt.Errorf("pair %s: %s: %w", pair, what,
		directory.NewError(directory.KindSourceUnavailable, directory.OpFetch, "", err))
}

func joinErrors(errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return errors.Join(nonNil...)
}

// snapshotCache fetches each keyed canonical source once per RunAll.
type snapshotCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once    sync.Once
	records []model.RawRecord
	err     error
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{entries: make(map[string]*cacheEntry)}
}

func (c *snapshotCache) fetch(ctx context.Context, p *Pass) ([]model.RawRecord, error) {
	if p.SourceKey == "" {
		return p.Source.FetchCanonical(ctx)
	}

	c.mu.Lock()
	e, ok := c.entries[p.SourceKey]
	if !ok {
		e = &cacheEntry{}
		c.entries[p.SourceKey] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.records, e.err = p.Source.FetchCanonical(ctx)
	})
	return e.records, e.err
}

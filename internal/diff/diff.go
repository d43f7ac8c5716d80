// Package diff turns a canonical snapshot and a downstream snapshot into a
// Plan of create, update, suspend and remove actions.
//
// A diff runs as an explicit pipeline:
//
//  1. classify every canonical entity (parallel)
//  2. match live and removable entities against the snapshot (sequential,
//     so claims stay injective)
//  3. resolve patches for matched live entities (parallel)
//  4. assemble the action lists in canonical input order
//
// Nothing here performs I/O. The same inputs always produce the same Plan.
package diff

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/roster/internal/classify"
	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/merge"
	"github.com/roach88/roster/internal/model"
)

// Engine computes plans for one downstream directory.
//
// An Engine holds configuration only and may be shared by goroutines.
type Engine struct {
	target         string
	classifier     *classify.Classifier
	matcher        *match.Matcher
	resolver       *merge.Resolver
	suspendOrphans bool
	workers        int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSuspendOrphans makes the engine suspend downstream records that no
// canonical entity claims. Off by default: orphans are only reported.
func WithSuspendOrphans(on bool) Option {
	return func(e *Engine) { e.suspendOrphans = on }
}

// WithWorkers bounds the parallel classify and patch stages.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an Engine for the named target directory. The target name
// scopes create idempotency keys.
func New(target string, cl *classify.Classifier, m *match.Matcher, r *merge.Resolver, opts ...Option) *Engine {
	e := &Engine{
		target:     target,
		classifier: cl,
		matcher:    m,
		resolver:   r,
		workers:    runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Target returns the directory name the engine plans for.
func (e *Engine) Target() string { return e.target }

// Diff computes the plan. Inputs are not modified.
//
// The error is non-nil only when ctx is cancelled or an idempotency key
// cannot be computed; well-formed input always yields a plan.
func (e *Engine) Diff(ctx context.Context, canonical []model.CanonicalEntity, downstream []model.DownstreamEntity) (*Plan, error) {
	plan := &Plan{Target: e.target, secret: e.resolver.IsSecret}

	hash, err := model.SnapshotHash(downstream)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", e.target, err)
	}
	plan.SnapshotHash = hash
	plan.downstream = make(map[string]struct{}, len(downstream))
	for _, d := range downstream {
		plan.downstream[d.DownstreamID] = struct{}{}
	}

	// Stage 1: classify.
	classified := make([]model.CanonicalEntity, len(canonical))
	if err := e.parallel(ctx, len(canonical), func(i int) {
		classified[i] = canonical[i].WithRole(e.classifier.Classify(canonical[i]))
	}); err != nil {
		return nil, fmt.Errorf("diff %s: classify: %w", e.target, err)
	}

	var candidates []model.CanonicalEntity
	for _, c := range classified {
		if c.Role == model.RoleIgnored {
			plan.Ignored = append(plan.Ignored, c.ExternalID)
			continue
		}
		candidates = append(candidates, c)
	}

	// Stage 2: match.
	matched := e.matcher.MatchAll(candidates, downstream)
	plan.Review = matched.Ties

	// Stage 3: patches for matched live entities.
	patches := make([]model.Patch, len(candidates))
	if err := e.parallel(ctx, len(candidates), func(i int) {
		r := matched.Matches[i]
		if r.Matched() && r.Canonical.Role.Live() {
			patches[i] = e.resolver.ResolvePatch(*r.Canonical, *r.Downstream)
		}
	}); err != nil {
		return nil, fmt.Errorf("diff %s: resolve: %w", e.target, err)
	}

	// Stage 4: assemble.
	for i, r := range matched.Matches {
		c := *r.Canonical
		switch {
		case c.Role.Live() && !r.Matched():
			a, err := model.NewCreate(e.target, c)
			if err != nil {
				return nil, fmt.Errorf("diff %s: %w", e.target, err)
			}
			plan.Create = append(plan.Create, a)

		case c.Role.Live():
			if !patches[i].Empty() {
				plan.Update = append(plan.Update, model.NewUpdate(c, r.Downstream.DownstreamID, patches[i]))
			}

		case c.Role == model.RoleRemovable && r.Kind == model.MatchExact:
			plan.Remove = append(plan.Remove, model.NewRemove(&c, r.Downstream.DownstreamID))

		case c.Role == model.RoleRemovable && r.Kind == model.MatchFuzzy:
			if r.Downstream.Suspended {
				slog.Debug("removable already suspended",
					"target", e.target,
					"external_id", c.ExternalID,
					"downstream_id", r.Downstream.DownstreamID,
				)
				continue
			}
			plan.Suspend = append(plan.Suspend, model.NewSuspend(&c, r.Downstream.DownstreamID))
		}
	}

	for _, o := range matched.Orphans {
		plan.Orphans = append(plan.Orphans, o.DownstreamID)
		if e.suspendOrphans && !o.Suspended {
			plan.Suspend = append(plan.Suspend, model.NewSuspend(nil, o.DownstreamID))
		}
	}

	slog.Debug("diff computed",
		"target", e.target,
		"canonical", len(canonical),
		"downstream", len(downstream),
		"create", len(plan.Create),
		"update", len(plan.Update),
		"suspend", len(plan.Suspend),
		"remove", len(plan.Remove),
		"orphans", len(plan.Orphans),
		"review", len(plan.Review),
		"ignored", len(plan.Ignored),
	)
	return plan, nil
}

// parallel runs fn for 0..n-1 on at most e.workers goroutines.
// fn must only write to its own index.
func (e *Engine) parallel(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Package metrics records per-run Prometheus metrics and exports them in
// the node_exporter textfile format, so a cron-driven run can be scraped
// without a long-lived listener.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/roster/internal/diff"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/model"
)

// Outcomes of a planned action.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Recorder holds the roster metrics on a private registry.
//
// Thread-safety: safe for concurrent use; pairs running in parallel share
// one Recorder.
type Recorder struct {
	registry *prometheus.Registry

	PlannedActions   *prometheus.GaugeVec
	Actions          *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	ValidationIssues *prometheus.CounterVec
	ReviewQueue      *prometheus.GaugeVec
	Orphans          *prometheus.GaugeVec
	RunDuration      *prometheus.HistogramVec
	LastRun          *prometheus.GaugeVec
	Cancelled        *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		PlannedActions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roster_planned_actions",
			Help: "Actions in the most recent plan by kind",
		}, []string{"pair", "kind"}),

		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_actions_total",
			Help: "Executed actions by kind and outcome",
		}, []string{"pair", "kind", "outcome"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_failures_total",
			Help: "Failed actions by error kind",
		}, []string{"pair", "error_kind"}),

		ValidationIssues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_validation_issues_total",
			Help: "Canonical fields dropped or records rejected during normalization",
		}, []string{"pair"}),

		ReviewQueue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roster_review_queue",
			Help: "Fuzzy ties awaiting review in the most recent plan",
		}, []string{"pair"}),

		Orphans: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roster_orphans",
			Help: "Downstream records with no canonical counterpart",
		}, []string{"pair"}),

		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_run_duration_seconds",
			Help:    "Wall time spent executing a plan",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}, []string{"pair"}),

		LastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roster_last_run_timestamp_seconds",
			Help: "Unix time the most recent run finished",
		}, []string{"pair"}),

		Cancelled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_cancelled_runs_total",
			Help: "Runs that stopped before their last action",
		}, []string{"pair"}),
	}
}

// Registry returns the registry the metrics live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObservePlan records the shape of a plan.
func (r *Recorder) ObservePlan(pair string, plan *diff.Plan) {
	counts := plan.Counts()
	for _, kind := range model.ActionKinds {
		r.PlannedActions.WithLabelValues(pair, string(kind)).Set(float64(counts[kind]))
	}
	r.ReviewQueue.WithLabelValues(pair).Set(float64(len(plan.Review)))
	r.Orphans.WithLabelValues(pair).Set(float64(len(plan.Orphans)))
}

// ObserveIssues counts normalization issues.
func (r *Recorder) ObserveIssues(pair string, n int) {
	if n > 0 {
		r.ValidationIssues.WithLabelValues(pair).Add(float64(n))
	}
}

// ObserveReport records the outcome of an executed plan.
func (r *Recorder) ObserveReport(rep *executor.Report) {
	pair := rep.Pair

	failed := make(map[model.ActionKind]int)
	for _, f := range rep.Failures {
		failed[f.ActionKind]++
		r.Failures.WithLabelValues(pair, string(f.ErrorKind)).Inc()
	}
	for _, kind := range model.ActionKinds {
		r.Actions.WithLabelValues(pair, string(kind), OutcomeSucceeded).Add(float64(rep.Count(kind)))
		r.Actions.WithLabelValues(pair, string(kind), OutcomeFailed).Add(float64(failed[kind]))
	}
	r.Actions.WithLabelValues(pair, "any", OutcomeSkipped).Add(float64(rep.Skipped))

	if rep.Cancelled {
		r.Cancelled.WithLabelValues(pair).Inc()
	}
	if !rep.FinishedAt.IsZero() {
		r.RunDuration.WithLabelValues(pair).Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
		r.LastRun.WithLabelValues(pair).Set(float64(rep.FinishedAt.UnixNano()) / float64(time.Second))
	}
}

// WriteToTextfile writes every metric to path atomically, in the format
// the node_exporter textfile collector reads.
func (r *Recorder) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

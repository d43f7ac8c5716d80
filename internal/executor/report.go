package executor

import (
	"time"

	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/model"
)

// Failure describes one action the directory rejected.
type Failure struct {
	EntityID     string           `json:"entity_id"`
	DownstreamID string           `json:"downstream_id,omitempty"`
	ActionKind   model.ActionKind `json:"action_kind"`
	ErrorKind    directory.Kind   `json:"error_kind"`
	Message      string           `json:"message"`
}

// Report is the complete account of one executed plan.
type Report struct {
	RunID         string    `json:"run_id"`
	Pair          string    `json:"pair"`
	EngineVersion string    `json:"engine_version"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`

	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Suspended int `json:"suspended"`
	Removed   int `json:"removed"`
	Ignored   int `json:"ignored"`

	// Skipped counts actions not issued: duplicate creates caught by the
	// ledger and updates whose patch was empty.
	Skipped int `json:"skipped"`

	Failures []Failure `json:"failures"`

	// Cancelled is true when the run stopped before its last action.
	Cancelled bool `json:"cancelled"`

	// Review and Orphans are copied from the plan for the audit trail.
	Review  int `json:"review"`
	Orphans int `json:"orphans"`
}

// Succeeded returns the number of actions the directory acknowledged.
func (r *Report) Succeeded() int {
	return r.Created + r.Updated + r.Suspended + r.Removed
}

// Failed reports whether any action failed.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// HasTransient reports whether a rerun could make progress.
func (r *Report) HasTransient() bool {
	for _, f := range r.Failures {
		if f.ErrorKind == directory.KindTransient {
			return true
		}
	}
	return false
}

// Count returns the success count for kind.
func (r *Report) Count(kind model.ActionKind) int {
	switch kind {
	case model.ActionCreate:
		return r.Created
	case model.ActionUpdate:
		return r.Updated
	case model.ActionSuspend:
		return r.Suspended
	case model.ActionRemove:
		return r.Removed
	}
	return 0
}

func (r *Report) succeed(kind model.ActionKind) {
	switch kind {
	case model.ActionCreate:
		r.Created++
	case model.ActionUpdate:
		r.Updated++
	case model.ActionSuspend:
		r.Suspended++
	case model.ActionRemove:
		r.Removed++
	}
}

package harness

import (
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/pipeline"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions match.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcomes holds one pipeline outcome per run, in run order.
	Outcomes []*pipeline.Outcome `json:"-"`

	// Downstream is the directory state after the last run, ordered by
	// downstream id.
	Downstream []model.DownstreamEntity `json:"downstream"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Errors:     []string{},
		Downstream: []model.DownstreamEntity{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the outcome of run n (1-based). Zero selects the last
// run. Returns nil when n is out of range.
func (r *Result) Outcome(n int) *pipeline.Outcome {
	if n == 0 {
		n = len(r.Outcomes)
	}
	if n < 1 || n > len(r.Outcomes) {
		return nil
	}
	return r.Outcomes[n-1]
}

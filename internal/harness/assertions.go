package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/pipeline"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Context  []string // Plan or directory lines for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\nContext:\n")
		for i, line := range e.Context {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// reportCounter returns the accessor for a named report counter.
func reportCounter(name string) (func(*executor.Report) int, bool) {
	switch name {
	case "created":
		return func(r *executor.Report) int { return r.Created }, true
	case "updated":
		return func(r *executor.Report) int { return r.Updated }, true
	case "suspended":
		return func(r *executor.Report) int { return r.Suspended }, true
	case "removed":
		return func(r *executor.Report) int { return r.Removed }, true
	case "ignored":
		return func(r *executor.Report) int { return r.Ignored }, true
	case "skipped":
		return func(r *executor.Report) int { return r.Skipped }, true
	case "failed":
		return func(r *executor.Report) int { return len(r.Failures) }, true
	case "review":
		return func(r *executor.Report) int { return r.Review }, true
	case "orphans":
		return func(r *executor.Report) int { return r.Orphans }, true
	}
	return nil, false
}

// evaluateAssertion dispatches to the checker for the assertion type.
func evaluateAssertion(a Assertion, result *Result) error {
	if a.Type == AssertDownstream {
		return assertDownstream(result.Downstream, a)
	}

	out := result.Outcome(a.Run)
	if out == nil {
		return fmt.Errorf("run %d did not execute", a.Run)
	}
	switch a.Type {
	case AssertReport:
		return assertReport(out.Report, a)
	case AssertPlanContains:
		return assertPlanContains(out, a)
	case AssertPlanCount:
		return assertPlanCount(out, a)
	case AssertPatch:
		return assertPatch(out, a)
	case AssertFailure:
		return assertFailure(out.Report, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertReport compares every listed counter. All mismatches are reported
// together.
func assertReport(rep *executor.Report, a Assertion) error {
	var diffs []string
	for _, name := range slices.Sorted(maps.Keys(a.Counts)) {
		get, _ := reportCounter(name)
		if got := get(rep); got != a.Counts[name] {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", name, got, a.Counts[name]))
		}
	}
	if a.Cancelled != nil && rep.Cancelled != *a.Cancelled {
		diffs = append(diffs, fmt.Sprintf("cancelled=%t (want %t)", rep.Cancelled, *a.Cancelled))
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertReport,
		Expected: fmt.Sprintf("counters %v", a.Counts),
		Actual:   strings.Join(diffs, ", "),
		Context:  failureLines(rep),
	}
}

func assertPlanContains(out *pipeline.Outcome, a Assertion) error {
	for _, act := range out.Plan.Actions() {
		if string(act.Kind) == a.Kind && act.EntityID() == a.Entity {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertPlanContains,
		Expected: fmt.Sprintf("%s action for %s", a.Kind, a.Entity),
		Actual:   "not found in plan",
		Context:  planLines(out),
	}
}

func assertPlanCount(out *pipeline.Outcome, a Assertion) error {
	got := out.Plan.Counts()[model.ActionKind(a.Kind)]
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertPlanCount,
		Expected: fmt.Sprintf("%d %s actions", a.Count, a.Kind),
		Actual:   fmt.Sprintf("%d %s actions", got, a.Kind),
		Context:  planLines(out),
	}
}

// assertPatch requires the update for the entity to carry exactly the
// expected fields.
func assertPatch(out *pipeline.Outcome, a Assertion) error {
	for _, act := range out.Plan.Update {
		if act.EntityID() != a.Entity {
			continue
		}
		if maps.Equal(map[string]string(act.Patch), a.Expect) {
			return nil
		}
		return &AssertionError{
			Type:     AssertPatch,
			Expected: fmt.Sprintf("patch %v", model.Patch(a.Expect)),
			Actual:   fmt.Sprintf("patch %v", act.Patch),
		}
	}
	return &AssertionError{
		Type:     AssertPatch,
		Expected: fmt.Sprintf("update for %s", a.Entity),
		Actual:   "no update planned",
		Context:  planLines(out),
	}
}

func assertFailure(rep *executor.Report, a Assertion) error {
	for _, f := range rep.Failures {
		if f.EntityID != a.Entity {
			continue
		}
		if a.ErrorKind == "" || string(f.ErrorKind) == a.ErrorKind {
			return nil
		}
		return &AssertionError{
			Type:     AssertFailure,
			Expected: fmt.Sprintf("%s failed with %s", a.Entity, a.ErrorKind),
			Actual:   fmt.Sprintf("%s failed with %s", a.Entity, f.ErrorKind),
		}
	}
	return &AssertionError{
		Type:     AssertFailure,
		Expected: fmt.Sprintf("failure for %s", a.Entity),
		Actual:   "no failure recorded",
		Context:  failureLines(rep),
	}
}

// assertDownstream finds the record by match key or id and checks the
// expected fields with subset semantics.
func assertDownstream(records []model.DownstreamEntity, a Assertion) error {
	idx := slices.IndexFunc(records, func(d model.DownstreamEntity) bool {
		if a.ID != "" {
			return d.DownstreamID == a.ID
		}
		return d.HasMatchKey(a.MatchKey)
	})

	want := a.ID
	if want == "" {
		want = "match key " + a.MatchKey
	}
	if a.Absent {
		if idx < 0 {
			return nil
		}
		return &AssertionError{
			Type:     AssertDownstream,
			Expected: fmt.Sprintf("no record for %s", want),
			Actual:   fmt.Sprintf("found %s", records[idx].DownstreamID),
		}
	}
	if idx < 0 {
		return &AssertionError{
			Type:     AssertDownstream,
			Expected: fmt.Sprintf("record for %s", want),
			Actual:   "record not found",
			Context:  downstreamLines(records),
		}
	}

	rec := records[idx]
	var diffs []string
	for _, k := range slices.Sorted(maps.Keys(a.Expect)) {
		if got := rec.Fields[k]; got != a.Expect[k] {
			diffs = append(diffs, fmt.Sprintf("%s=%q (want %q)", k, got, a.Expect[k]))
		}
	}
	if a.Suspended != nil && rec.Suspended != *a.Suspended {
		diffs = append(diffs, fmt.Sprintf("suspended=%t (want %t)", rec.Suspended, *a.Suspended))
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertDownstream,
		Expected: fmt.Sprintf("%s with %v", rec.DownstreamID, a.Expect),
		Actual:   strings.Join(diffs, ", "),
	}
}

func planLines(out *pipeline.Outcome) []string {
	var lines []string
	for _, act := range out.Plan.Actions() {
		line := fmt.Sprintf("%s %s", act.Kind, act.EntityID())
		if act.DownstreamID != "" && act.DownstreamID != act.EntityID() {
			line += " -> " + act.DownstreamID
		}
		if len(act.Patch) > 0 {
			line += " " + act.Patch.Redacted(out.Plan.IsSecret).String()
		}
		lines = append(lines, line)
	}
	return lines
}

func failureLines(rep *executor.Report) []string {
	var lines []string
	for _, f := range rep.Failures {
		lines = append(lines, fmt.Sprintf("%s %s: %s", f.ActionKind, f.EntityID, f.Message))
	}
	return lines
}

func downstreamLines(records []model.DownstreamEntity) []string {
	var lines []string
	for _, d := range records {
		lines = append(lines, fmt.Sprintf("%s keys=%v suspended=%t", d.DownstreamID, d.MatchKeys, d.Suspended))
	}
	return lines
}

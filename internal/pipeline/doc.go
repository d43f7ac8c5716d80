// Package pipeline runs directory-pair passes end to end.
//
// A pass fetches the canonical extract and the downstream snapshot,
// normalizes, diffs, executes the plan, then persists the report and
// records metrics:
//
//	source ──▶ normalize ──▶ diff(classify, match, merge) ──▶ execute ──▶ store
//	                              ▲
//	directory snapshot ───────────┘
//
// # Failure model
//
// Only two things fail a pass: an unreadable canonical source and an
// unreadable downstream snapshot. Both are reported as errors of kind
// directory.KindSourceUnavailable before any mutation is issued. Everything
// after planning is captured in the executor.Report.
//
// # Concurrency
//
// RunAll runs passes concurrently. Passes that name the same source key
// share one fetched extract; it is read-only for the rest of the run.
// Each pass executes against its own directory serially, paced by its own
// Pacer.
package pipeline

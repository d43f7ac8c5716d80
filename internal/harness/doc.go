// Package harness runs reconciliation scenarios end to end.
//
// A scenario describes a canonical extract, the downstream directory it is
// reconciled against, optional injected faults, and assertions on the
// resulting plans, reports and final directory state. The harness drives
// the real pipeline: normalization, classification, matching, diff and
// execution, with the report and create-key ledger persisted to an
// in-memory store.
//
// # Scenario Format
//
//	name: partial_failure
//	description: "One create fails transiently and succeeds on rerun"
//	run_id: run-0001
//	runs: 2
//	canonical:
//	  - external_id: E1
//	    full_name: Ivanov Ivan
//	    phone: "+7 999 123-45-67"
//	    status: active
//	downstream:
//	  - downstream_id: d1
//	    fields: { full_name: Petrov Petr }
//	    match_keys: [E9]
//	faults:
//	  - op: create
//	    id: E1
//	    times: 1
//	assertions:
//	  - type: report
//	    run: 1
//	    counts: { created: 0, failed: 1 }
//	  - type: downstream
//	    match_key: E1
//	    expect: { phone: "+79991234567" }
//
// # Assertion Types
//
//   - report: report counters (created, updated, suspended, removed,
//     ignored, skipped, failed, review, orphans) and the cancelled flag
//   - plan_contains: an action of a kind for an entity is planned
//   - plan_count: exactly N actions of a kind are planned
//   - patch: the update for an entity carries exactly the expected fields
//   - failure: an entity failed with an error kind
//   - downstream: a record in the final directory has the expected fields,
//     suspension flag, or is absent
//
// Every assertion except downstream takes a 1-based run index; zero
// selects the last run.
//
// # Deterministic Testing
//
// Run ids are fixed ("<run_id>", "<run_id>-2", ...), the report clock is a
// testutil.StepClock and downstream ids are assigned sequentially by
// directory.Memory, so golden snapshots are byte-stable.
package harness

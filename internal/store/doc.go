// Package store provides SQLite-backed durable storage for sync runs.
//
// The store keeps two things:
//   - Runs: one row per executed plan with its counts, plus the full report
//     as JSON and one row per failure for querying
//   - Create keys: the idempotency keys of creates the directory accepted,
//     scoped by target directory
//
// # Critical Patterns
//
// Append-only runs
//   - A run is written once, after the executor returns
//   - Saving the same run id twice is an error, never an overwrite
//
// Keys after success
//   - A create key is recorded only after the directory acknowledged the
//     create, so failed creates stay retryable
//   - INSERT ... ON CONFLICT DO NOTHING keeps the first downstream id
//
// Deterministic listing
//   - Runs list by started_at DESC, run_id DESC
//   - Failures read back in the order the executor reported them
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

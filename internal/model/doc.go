// Package model defines the record types that flow through a reconciliation
// pass: canonical entities, downstream entities, match results, actions and
// field patches.
//
// This package holds types and identity helpers only. Every other internal
// package imports model; model imports nothing internal.
//
// Key design constraints:
//   - Canonical entities are immutable for the duration of a pass
//   - Patches are values; merge code returns new patches, never mutates
//   - Content hashes use canonical JSON (see canonical.go) so identical
//     inputs always produce identical keys
//   - All JSON tags use snake_case
package model

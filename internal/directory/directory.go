// Package directory defines the collaborator contracts the engine consumes:
// a canonical Source and a downstream Directory.
//
// Vendor transports live outside this repository. The package ships an
// in-memory Directory for tests and scenarios, a JSON file backed Directory
// for local runs, and a circuit breaker decorator.
//
// Implementations report failures as *Error so the executor can classify
// them without knowing the vendor.
package directory

import (
	"context"

	"github.com/roach88/roster/internal/model"
)

// Operation names used in *Error.Op.
const (
	OpFetch   = "fetch"
	OpCreate  = "create"
	OpUpdate  = "update"
	OpSuspend = "suspend"
	OpRemove  = "remove"
)

// Source yields the canonical snapshot for a pass.
type Source interface {
	// FetchCanonical returns every raw record of the extract. A failure must
	// carry KindSourceUnavailable; no partial snapshot is returned.
	FetchCanonical(ctx context.Context) ([]model.RawRecord, error)
}

// Directory is a downstream system kept in sync with the canonical source.
type Directory interface {
	// Name identifies the directory in reports and idempotency keys.
	Name() string

	// FetchSnapshot returns every record currently present.
	FetchSnapshot(ctx context.Context) ([]model.DownstreamEntity, error)

	// Create inserts a record and returns the directory-assigned id.
	// Fails with DuplicateKey, Validation or Transient.
	Create(ctx context.Context, payload map[string]string) (string, error)

	// Update applies patch to id. Fails with NotFound or Transient.
	Update(ctx context.Context, id string, patch model.Patch) error

	// Suspend soft-disables id. Fails with NotFound or Transient.
	Suspend(ctx context.Context, id string) error

	// Remove hard-deletes id. Fails with NotFound or Transient.
	Remove(ctx context.Context, id string) error
}

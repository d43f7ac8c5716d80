package model

// Version constants stamped on every run report.
const (
	// EngineVersion is the roster engine version.
	EngineVersion = "0.3.0"

	// KeyVersion is the idempotency key scheme version. Bump it when the set of
	// stable identity fields changes so old ledger entries stop matching.
	KeyVersion = "1"

	// SnapshotVersion is the snapshot fingerprint scheme version. Bump it when
	// the fields covered by SnapshotHash change.
	SnapshotVersion = "1"
)

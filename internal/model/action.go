package model

import "fmt"

// ActionKind identifies one of the four mutations a pass can propose.
type ActionKind string

const (
	ActionCreate  ActionKind = "create"
	ActionUpdate  ActionKind = "update"
	ActionSuspend ActionKind = "suspend"
	ActionRemove  ActionKind = "remove"
)

// ActionKinds lists every kind in execution order.
var ActionKinds = []ActionKind{ActionCreate, ActionUpdate, ActionSuspend, ActionRemove}

// Action is one proposed mutation against a downstream directory.
//
// Create actions carry the canonical entity and an idempotency key.
// Update actions carry the downstream id and a non-empty patch.
// Suspend and Remove actions carry the downstream id; Canonical is set for
// reporting when the action was derived from a removable canonical record.
type Action struct {
	Kind           ActionKind       `json:"kind"`
	Canonical      *CanonicalEntity `json:"canonical,omitempty"`
	DownstreamID   string           `json:"downstream_id,omitempty"`
	Patch          Patch            `json:"patch,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

// EntityID returns the identity an action is reported under: the canonical
// external id when known, otherwise the downstream id.
func (a Action) EntityID() string {
	if a.Canonical != nil && a.Canonical.ExternalID != "" {
		return a.Canonical.ExternalID
	}
	return a.DownstreamID
}

// NewCreate builds a create action for a live canonical entity.
// Returns an error if the idempotency key cannot be computed.
func NewCreate(target string, c CanonicalEntity) (Action, error) {
	key, err := CreateKey(target, c)
	if err != nil {
		return Action{}, fmt.Errorf("create %s: %w", c.ExternalID, err)
	}
	return Action{
		Kind:           ActionCreate,
		Canonical:      &c,
		IdempotencyKey: key,
	}, nil
}

// NewUpdate builds an update action. The patch is not copied; callers hand
// over ownership.
func NewUpdate(c CanonicalEntity, downstreamID string, p Patch) Action {
	return Action{
		Kind:         ActionUpdate,
		Canonical:    &c,
		DownstreamID: downstreamID,
		Patch:        p,
	}
}

// NewSuspend builds a suspend action. c may be nil for orphan suspensions.
func NewSuspend(c *CanonicalEntity, downstreamID string) Action {
	return Action{Kind: ActionSuspend, Canonical: c, DownstreamID: downstreamID}
}

// NewRemove builds a remove action.
func NewRemove(c *CanonicalEntity, downstreamID string) Action {
	return Action{Kind: ActionRemove, Canonical: c, DownstreamID: downstreamID}
}

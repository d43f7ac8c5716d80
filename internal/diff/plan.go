package diff

import (
	"math"
	"slices"

	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/model"
)

// Plan is the outcome of one diff: four disjoint action lists plus the
// entities that need a human.
type Plan struct {
	// Target names the downstream directory the plan was computed for.
	Target string `json:"target"`

	Create  []model.Action `json:"create"`
	Update  []model.Action `json:"update"`
	Suspend []model.Action `json:"suspend"`
	Remove  []model.Action `json:"remove"`

	// Orphans are downstream ids with no canonical counterpart.
	Orphans []string `json:"orphans,omitempty"`

	// Review lists fuzzy ties.
	Review []match.Tie `json:"review,omitempty"`

	// Ignored lists external ids classified Ignored.
	Ignored []string `json:"ignored,omitempty"`

	// SnapshotHash fingerprints the downstream snapshot the plan was built on.
	SnapshotHash string `json:"snapshot_hash"`

	// secret reports fields whose values must not be rendered.
	secret func(string) bool

	// downstream holds the ids of the snapshot. Nil for hand-built plans.
	downstream map[string]struct{}
}

// Actions returns every action in execution order: create, update,
// suspend, remove.
func (p *Plan) Actions() []model.Action {
	out := make([]model.Action, 0, p.Len())
	out = append(out, p.Create...)
	out = append(out, p.Update...)
	out = append(out, p.Suspend...)
	return append(out, p.Remove...)
}

// Len returns the number of actions.
func (p *Plan) Len() int {
	return len(p.Create) + len(p.Update) + len(p.Suspend) + len(p.Remove)
}

// Empty reports whether the plan proposes no mutation.
func (p *Plan) Empty() bool {
	return p.Len() == 0
}

// Counts returns the number of actions per kind.
func (p *Plan) Counts() map[model.ActionKind]int {
	return map[model.ActionKind]int{
		model.ActionCreate:  len(p.Create),
		model.ActionUpdate:  len(p.Update),
		model.ActionSuspend: len(p.Suspend),
		model.ActionRemove:  len(p.Remove),
	}
}

// InSnapshot reports whether id was present in the downstream snapshot the
// plan was built on. A plan built without a snapshot reports every id as
// present.
func (p *Plan) InSnapshot(id string) bool {
	if p.downstream == nil {
		return true
	}
	_, ok := p.downstream[id]
	return ok
}

// IsSecret reports whether a patch field carries a secret.
func (p *Plan) IsSecret(field string) bool {
	return p.secret != nil && p.secret(field)
}

// MarshalCanonical renders the plan as canonical JSON with secrets
// redacted. Scores are rendered in thousandths. The snapshot hash is left
// out so fixtures stay readable.
func (p *Plan) MarshalCanonical() ([]byte, error) {
	redact := func(patch model.Patch) model.Patch {
		return patch.Redacted(p.IsSecret)
	}

	creates := make([]any, len(p.Create))
	for i, a := range p.Create {
		payload := map[string]string{}
		if a.Canonical != nil {
			c := *a.Canonical
			c.Secrets = nil
			payload = c.Payload()
		}
		creates[i] = map[string]any{
			"external_id":     a.EntityID(),
			"idempotency_key": a.IdempotencyKey,
			"payload":         payload,
			"role":            string(roleOf(a)),
		}
	}

	updates := make([]any, len(p.Update))
	for i, a := range p.Update {
		updates[i] = map[string]any{
			"external_id":   a.EntityID(),
			"downstream_id": a.DownstreamID,
			"patch":         redact(a.Patch),
		}
	}

	refs := func(actions []model.Action) []any {
		out := make([]any, len(actions))
		for i, a := range actions {
			out[i] = map[string]any{
				"entity_id":     a.EntityID(),
				"downstream_id": a.DownstreamID,
			}
		}
		return out
	}

	review := make([]any, len(p.Review))
	for i, t := range p.Review {
		review[i] = map[string]any{
			"external_id": t.ExternalID,
			"candidates":  slices.Clone(t.Candidates),
			"chosen":      t.Chosen,
			"score_milli": int(math.Round(t.Score * 1000)),
		}
	}

	return model.MarshalCanonical(map[string]any{
		"target":  p.Target,
		"create":  creates,
		"update":  updates,
		"suspend": refs(p.Suspend),
		"remove":  refs(p.Remove),
		"orphans": nonNil(p.Orphans),
		"review":  review,
		"ignored": nonNil(p.Ignored),
	})
}

func roleOf(a model.Action) model.Role {
	if a.Canonical == nil {
		return model.RoleNone
	}
	return a.Canonical.Role
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

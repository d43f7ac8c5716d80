// Package classify assigns a role to every canonical entity before it is
// matched. Rules are evaluated in a fixed order and the first hit wins:
// removable, dependent, active, ignored.
package classify

import (
	"log/slog"
	"strings"

	"github.com/roach88/roster/internal/model"
)

// DefaultActiveStatuses are the status values that mean "currently enrolled
// or employed". Comparison is case-insensitive.
var DefaultActiveStatuses = []string{"active", "enrolled", "employed", "studying"}

// Classifier labels canonical entities with a role.
//
// A Classifier is immutable after New and may be shared by goroutines.
type Classifier struct {
	active map[string]struct{}
}

// New creates a Classifier. With no statuses, DefaultActiveStatuses apply.
func New(activeStatuses ...string) *Classifier {
	if len(activeStatuses) == 0 {
		activeStatuses = DefaultActiveStatuses
	}
	c := &Classifier{active: make(map[string]struct{}, len(activeStatuses))}
	for _, s := range activeStatuses {
		if k := statusKey(s); k != "" {
			c.active[k] = struct{}{}
		}
	}
	return c
}

// IsActiveStatus reports whether status denotes current enrollment or
// employment.
func (c *Classifier) IsActiveStatus(status string) bool {
	_, ok := c.active[statusKey(status)]
	return ok
}

// Classify returns the role for e. It never fails; an entity that fits no
// rule is Ignored and the reason is logged.
func (c *Classifier) Classify(e model.CanonicalEntity) model.Role {
	if !c.IsActiveStatus(e.StatusRaw) {
		return model.RoleRemovable
	}
	if isDependent(e) {
		return model.RoleDependent
	}
	if e.Phone != "" {
		return model.RoleActive
	}

	slog.Debug("entity ignored",
		"external_id", e.ExternalID,
		"reason", "active status without contact phone",
	)
	return model.RoleIgnored
}

// isDependent: a relationship to a person (not an organization) whose
// contact differs from the entity's own.
func isDependent(e model.CanonicalEntity) bool {
	rel := e.Relationship
	if rel == nil || rel.Organization || rel.CounterpartID == "" {
		return false
	}
	if rel.CounterpartID == e.ExternalID {
		return false
	}
	own := contact(e.Phone, e.Email)
	if own == "" {
		return false
	}
	return own != contact(rel.CounterpartPhone, rel.CounterpartEmail)
}

// contact prefers the phone and falls back to the email.
func contact(phone, email string) string {
	if phone != "" {
		return phone
	}
	return email
}

func statusKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

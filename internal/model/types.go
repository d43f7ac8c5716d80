package model

import (
	"slices"
	"strings"
)

// Well-known downstream field names. Directory adapters translate their
// vendor schema into these names when building a snapshot.
const (
	FieldExternalID = "external_id"
	FieldFullName   = "full_name"
	FieldPhone      = "phone"
	FieldEmail      = "email"
	FieldGroups     = "groups"

	// FieldSuspended is never part of a snapshot's Fields map. It only appears
	// in patches, to reactivate a record the directory reports as suspended.
	FieldSuspended = "suspended"
)

// Role is the classification assigned to a canonical entity before matching.
type Role string

const (
	// RoleNone is the zero value: not classified yet.
	RoleNone Role = ""

	// RoleActive is a currently enrolled/employed principal with a contact phone.
	RoleActive Role = "active"

	// RoleDependent is a guardian or payer distinct from its principal.
	RoleDependent Role = "dependent"

	// RoleRemovable is an entity whose status is no longer current.
	RoleRemovable Role = "removable"

	// RoleIgnored is excluded from every action list but still reported.
	RoleIgnored Role = "ignored"
)

// Live reports whether entities with this role should exist downstream.
func (r Role) Live() bool {
	return r == RoleActive || r == RoleDependent
}

// RawRecord is one row of a canonical directory extract before normalization.
// Field values are exactly as the source returned them.
type RawRecord struct {
	ExternalID   string            `json:"external_id" yaml:"external_id"`
	FullName     string            `json:"full_name" yaml:"full_name"`
	Phone        string            `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email        string            `json:"email,omitempty" yaml:"email,omitempty"`
	GroupKey     string            `json:"group_key,omitempty" yaml:"group_key,omitempty"`
	Status       string            `json:"status" yaml:"status"`
	Relationship *RawRelationship  `json:"relationship,omitempty" yaml:"relationship,omitempty"`
	Secrets      map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty"`
}

// RawRelationship links a guardian/payer row to its principal, unnormalized.
type RawRelationship struct {
	CounterpartID    string `json:"counterpart_id" yaml:"counterpart_id"`
	Organization     bool   `json:"organization,omitempty" yaml:"organization,omitempty"`
	CounterpartPhone string `json:"counterpart_phone,omitempty" yaml:"counterpart_phone,omitempty"`
	CounterpartEmail string `json:"counterpart_email,omitempty" yaml:"counterpart_email,omitempty"`
}

// CanonicalEntity is the source-of-truth record for one person in one pass.
//
// Values are normalized: Phone is E.164 or empty, Email is lower-case and
// syntactically valid or empty, FullName has collapsed whitespace.
type CanonicalEntity struct {
	ExternalID   string            `json:"external_id"`
	FullName     string            `json:"full_name"`
	Phone        string            `json:"phone,omitempty"`
	Email        string            `json:"email,omitempty"`
	Role         Role              `json:"role,omitempty"`
	GroupKey     string            `json:"group_key,omitempty"`
	StatusRaw    string            `json:"status_raw"`
	Relationship *Relationship     `json:"relationship,omitempty"`
	Secrets      map[string]string `json:"-"`
}

// Relationship links a dependent (guardian/payer) to its principal.
type Relationship struct {
	CounterpartID    string `json:"counterpart_id"`
	Organization     bool   `json:"organization,omitempty"`
	CounterpartPhone string `json:"counterpart_phone,omitempty"`
	CounterpartEmail string `json:"counterpart_email,omitempty"`
}

// WithRole returns a copy of the entity carrying the given role.
// The receiver is not modified.
func (c CanonicalEntity) WithRole(r Role) CanonicalEntity {
	c.Role = r
	return c
}

// Payload projects the entity onto the well-known downstream field names.
// Empty values are omitted. Secrets are included under their own names.
func (c CanonicalEntity) Payload() map[string]string {
	out := make(map[string]string, 5+len(c.Secrets))
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put(FieldExternalID, c.ExternalID)
	put(FieldFullName, c.FullName)
	put(FieldPhone, c.Phone)
	put(FieldEmail, c.Email)
	put(FieldGroups, c.GroupKey)
	for k, v := range c.Secrets {
		put(k, v)
	}
	return out
}

// DownstreamEntity is a record already present in a target directory.
// The engine only reads it and proposes mutations.
type DownstreamEntity struct {
	DownstreamID string            `json:"downstream_id" yaml:"downstream_id"`
	Fields       map[string]string `json:"fields" yaml:"fields"`
	MatchKeys    []string          `json:"match_keys,omitempty" yaml:"match_keys,omitempty"`
	Suspended    bool              `json:"suspended,omitempty" yaml:"suspended,omitempty"`
}

// FullName returns the record's full_name field.
func (d DownstreamEntity) FullName() string {
	return d.Fields[FieldFullName]
}

// HasMatchKey reports whether key is one of the record's exact match keys.
func (d DownstreamEntity) HasMatchKey(key string) bool {
	if key == "" {
		return false
	}
	return slices.Contains(d.MatchKeys, key)
}

// MatchKind says how a canonical entity was paired with a downstream record.
type MatchKind string

const (
	MatchNone  MatchKind = "none"
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
)

// MatchResult pairs at most one canonical entity with at most one
// downstream record. Score is 1.0 for exact matches, the similarity for
// fuzzy ones and 0 otherwise.
type MatchResult struct {
	Canonical  *CanonicalEntity  `json:"canonical,omitempty"`
	Downstream *DownstreamEntity `json:"downstream,omitempty"`
	Kind       MatchKind         `json:"kind"`
	Score      float64           `json:"score"`
}

// Matched reports whether a downstream record was found.
func (m MatchResult) Matched() bool {
	return m.Kind != MatchNone && m.Downstream != nil
}

// Patch is the set of downstream fields an update must change,
// keyed by well-known field name.
type Patch map[string]string

// Empty reports whether the patch carries no changes.
func (p Patch) Empty() bool {
	return len(p) == 0
}

// SortedKeys returns patch field names in lexicographic order.
func (p Patch) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String renders the patch as "k=v,k=v" in key order. Secret values are
// the caller's concern; use Redacted for logging.
func (p Patch) String() string {
	var b strings.Builder
	for i, k := range p.SortedKeys() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p[k])
	}
	return b.String()
}

// Redacted returns a copy with the values of the named fields replaced.
func (p Patch) Redacted(secret func(field string) bool) Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		if secret(k) {
			v = "<redacted>"
		}
		out[k] = v
	}
	return out
}

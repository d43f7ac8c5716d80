// Package merge computes field-level patches for update actions.
//
// The canonical directory wins on every managed field. Secrets are the
// exception: they are only ever filled in, never overwritten.
package merge

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/normalize"
)

// Kind selects how a field's values are compared.
type Kind string

const (
	KindPlain  Kind = "plain"
	KindPhone  Kind = "phone"
	KindEmail  Kind = "email"
	KindName   Kind = "name"
	KindSet    Kind = "set"
	KindSecret Kind = "secret"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPlain, KindPhone, KindEmail, KindName, KindSet, KindSecret:
		return true
	}
	return false
}

// FieldPolicy binds a downstream field name to a comparison kind.
type FieldPolicy struct {
	Field string `json:"field"`
	Kind  Kind   `json:"kind"`
}

// DefaultPolicies covers the well-known fields.
var DefaultPolicies = []FieldPolicy{
	{Field: model.FieldFullName, Kind: KindName},
	{Field: model.FieldPhone, Kind: KindPhone},
	{Field: model.FieldEmail, Kind: KindEmail},
	{Field: model.FieldGroups, Kind: KindSet},
}

// Resolver compares a canonical entity with its matched downstream record.
//
// A Resolver is immutable after New; ResolvePatch is a pure function of
// its arguments.
type Resolver struct {
	policies []FieldPolicy
	secrets  map[string]bool
	norm     *normalize.Normalizer
}

// New creates a Resolver. With no policies, DefaultPolicies apply.
// Returns an error for an unknown kind or a field listed twice.
func New(n *normalize.Normalizer, policies ...FieldPolicy) (*Resolver, error) {
	if n == nil {
		n = normalize.New()
	}
	if len(policies) == 0 {
		policies = DefaultPolicies
	}

	r := &Resolver{
		policies: slices.Clone(policies),
		secrets:  make(map[string]bool),
		norm:     n,
	}
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if p.Field == "" {
			return nil, fmt.Errorf("merge: field policy without a field name")
		}
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("merge: field %q: unknown kind %q", p.Field, p.Kind)
		}
		if seen[p.Field] {
			return nil, fmt.Errorf("merge: field %q listed twice", p.Field)
		}
		seen[p.Field] = true
		if p.Kind == KindSecret {
			r.secrets[p.Field] = true
		}
	}
	return r, nil
}

// IsSecret reports whether field holds a secret. Used to redact patches.
func (r *Resolver) IsSecret(field string) bool {
	return r.secrets[field]
}

// ResolvePatch returns the fields of d that must change to agree with c.
//
// A field is considered only when the canonical value is non-empty and the
// downstream snapshot carries the field; a field missing from the snapshot
// is not managed by that directory. Secret fields are the exception: a
// missing secret counts as unset and is filled in. A live entity matched to a suspended
// record also gets suspended=false. The result is nil when nothing differs.
func (r *Resolver) ResolvePatch(c model.CanonicalEntity, d model.DownstreamEntity) model.Patch {
	want := c.Payload()
	var patch model.Patch

	set := func(field, value string) {
		if patch == nil {
			patch = make(model.Patch)
		}
		patch[field] = value
	}

	for _, p := range r.policies {
		cv := want[p.Field]
		if cv == "" {
			continue
		}
		dv, present := d.Fields[p.Field]
		if !present && p.Kind != KindSecret {
			continue
		}
		if v, changed := r.compare(p.Kind, cv, dv); changed {
			set(p.Field, v)
		}
	}

	if d.Suspended && c.Role.Live() {
		set(model.FieldSuspended, "false")
	}
	return patch
}

// compare returns the value to write and whether it differs from dv.
func (r *Resolver) compare(kind Kind, cv, dv string) (string, bool) {
	switch kind {
	case KindSecret:
		return cv, dv == ""
	case KindPhone:
		if phone, ok := r.norm.Phone(dv); ok {
			dv = phone
		}
		return cv, cv != strings.TrimSpace(dv)
	case KindEmail:
		return cv, cv != strings.ToLower(strings.TrimSpace(dv))
	case KindName:
		return cv, normalize.Name(cv) != normalize.Name(dv)
	case KindSet:
		want := SplitSet(cv)
		return strings.Join(want, ","), !slices.Equal(want, SplitSet(dv))
	default:
		return cv, cv != strings.TrimSpace(dv)
	}
}

// SplitSet parses a ',' or ';' separated list into sorted, de-duplicated,
// whitespace-normalized members.
func SplitSet(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = normalize.Name(p); p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

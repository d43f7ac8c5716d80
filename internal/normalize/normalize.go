package normalize

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/roster/internal/model"
)

// DefaultRegion is the numbering plan used when none is configured.
const DefaultRegion = "RU"

// Normalizer turns raw extract rows into canonical entities.
//
// Thread-safety: safe for concurrent use. validator.Validate caches struct
// metadata internally and is documented as goroutine safe.
type Normalizer struct {
	region   string
	validate *validator.Validate
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRegion sets the ISO 3166 region used to parse national phone numbers.
func WithRegion(region string) Option {
	return func(n *Normalizer) {
		if region != "" {
			n.region = strings.ToUpper(region)
		}
	}
}

// New creates a Normalizer. Default region is RU.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		region:   DefaultRegion,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize cleans one raw record.
//
// The returned entity has no role yet. Issues lists every field that was
// dropped. The error is non-nil only when the record has no external id.
func (n *Normalizer) Normalize(raw model.RawRecord) (model.CanonicalEntity, []Issue, error) {
	id := Name(raw.ExternalID)
	if id == "" {
		return model.CanonicalEntity{}, nil, &ValidationError{
			Field:   model.FieldExternalID,
			Message: "external id is required",
		}
	}

	var issues []Issue
	drop := func(field, value, reason string) {
		issues = append(issues, Issue{ExternalID: id, Field: field, Value: value, Reason: reason})
		slog.Debug("field dropped during normalization",
			"external_id", id,
			"field", field,
			"reason", reason,
		)
	}

	c := model.CanonicalEntity{
		ExternalID: id,
		FullName:   Name(raw.FullName),
		GroupKey:   Name(raw.GroupKey),
		StatusRaw:  Name(raw.Status),
	}

	if raw.Phone != "" {
		if phone, ok := n.Phone(raw.Phone); ok {
			c.Phone = phone
		} else {
			drop(model.FieldPhone, raw.Phone, "not a valid number for region "+n.region)
		}
	}

	if raw.Email != "" {
		if email, ok := n.Email(raw.Email); ok {
			c.Email = email
		} else {
			drop(model.FieldEmail, raw.Email, "not a syntactically valid address")
		}
	}

	if rel := raw.Relationship; rel != nil {
		r := &model.Relationship{
			CounterpartID: Name(rel.CounterpartID),
			Organization:  rel.Organization,
		}
		if rel.CounterpartPhone != "" {
			if phone, ok := n.Phone(rel.CounterpartPhone); ok {
				r.CounterpartPhone = phone
			} else {
				drop("relationship.counterpart_phone", rel.CounterpartPhone, "not a valid number for region "+n.region)
			}
		}
		if rel.CounterpartEmail != "" {
			if email, ok := n.Email(rel.CounterpartEmail); ok {
				r.CounterpartEmail = email
			} else {
				drop("relationship.counterpart_email", rel.CounterpartEmail, "not a syntactically valid address")
			}
		}
		if r.CounterpartID != "" {
			c.Relationship = r
		} else {
			drop("relationship", rel.CounterpartID, "relationship without counterpart id")
		}
	}

	if len(raw.Secrets) > 0 {
		c.Secrets = make(map[string]string, len(raw.Secrets))
		for k, v := range raw.Secrets {
			if v != "" {
				c.Secrets[k] = v
			}
		}
	}

	return c, issues, nil
}

// Phone parses s against the configured region and returns it in E.164.
// ok is false when s is not a valid number.
func (n *Normalizer) Phone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	num, err := phonenumbers.Parse(s, n.region)
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// Email trims and lower-cases s and checks its syntax.
func (n *Normalizer) Email(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if err := n.validate.Var(s, "email"); err != nil {
		return "", false
	}
	return s, true
}

// Name NFC-normalizes s, collapses every run of Unicode whitespace to one
// ASCII space and trims both ends.
func Name(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// NameKey reduces a full name to the form used for fuzzy comparison:
// case-folded, diacritics stripped, whitespace collapsed.
func NameKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return Name(cases.Fold().String(stripped))
}

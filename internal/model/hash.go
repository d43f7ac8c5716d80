package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows migrating the key scheme later.
const (
	DomainCreate   = "roster/create/v" + KeyVersion
	DomainSnapshot = "roster/snapshot/v" + SnapshotVersion
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CreateKey computes the idempotency key for creating c in the named target
// directory. The key covers the stable identity fields only, never the id
// the directory will assign, so two creates of the same content collide
// before the second one is issued.
//
// Group, status and secrets are excluded: they can change without the
// person changing.
func CreateKey(target string, c CanonicalEntity) (string, error) {
	obj := map[string]any{
		"target":      target,
		"external_id": c.ExternalID,
		"full_name":   c.FullName,
		"phone":       c.Phone,
		"email":       c.Email,
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CreateKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCreate, data), nil
}

// MustCreateKey is like CreateKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCreateKey(target string, c CanonicalEntity) string {
	key, err := CreateKey(target, c)
	if err != nil {
		panic(err)
	}
	return key
}

// SnapshotHash fingerprints a downstream snapshot so reports can show
// whether two runs looked at the same data.
func SnapshotHash(entities []DownstreamEntity) (string, error) {
	list := make([]any, len(entities))
	for i, e := range entities {
		fields := make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			fields[k] = v
		}
		keys := e.MatchKeys
		if keys == nil {
			keys = []string{}
		}
		list[i] = map[string]any{
			"downstream_id": e.DownstreamID,
			"fields":        fields,
			"match_keys":    keys,
			"suspended":     e.Suspended,
		}
	}
	data, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, data), nil
}

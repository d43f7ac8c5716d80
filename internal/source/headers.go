package source

import (
	"strings"
)

// Column targets a CSV header can map to. Secret columns map to
// "secret:<name>".
const (
	ColExternalID       = "external_id"
	ColFullName         = "full_name"
	ColPhone            = "phone"
	ColEmail            = "email"
	ColGroupKey         = "group_key"
	ColStatus           = "status"
	ColCounterpartID    = "counterpart_id"
	ColCounterpartPhone = "counterpart_phone"
	ColCounterpartEmail = "counterpart_email"
	ColOrganization     = "organization"

	secretPrefix = "secret:"
)

// HeaderMappings maps normalized header names to columns.
var HeaderMappings = map[string]string{
	"externalid":   ColExternalID,
	"id":           ColExternalID,
	"studentid":    ColExternalID,
	"employeeid":   ColExternalID,
	"personid":     ColExternalID,
	"табельный":    ColExternalID,
	"fullname":     ColFullName,
	"name":         ColFullName,
	"displayname":  ColFullName,
	"фио":          ColFullName,
	"phone":        ColPhone,
	"mobile":       ColPhone,
	"phonenumber":  ColPhone,
	"телефон":      ColPhone,
	"email":        ColEmail,
	"mail":         ColEmail,
	"emailaddress": ColEmail,
	"почта":        ColEmail,
	"group":        ColGroupKey,
	"groupkey":     ColGroupKey,
	"groups":       ColGroupKey,
	"cohort":       ColGroupKey,
	"department":   ColGroupKey,
	"класс":        ColGroupKey,
	"группа":       ColGroupKey,
	"status":       ColStatus,
	"state":        ColStatus,
	"статус":       ColStatus,

	"counterpartid":    ColCounterpartID,
	"principalid":      ColCounterpartID,
	"parentof":         ColCounterpartID,
	"counterpartphone": ColCounterpartPhone,
	"principalphone":   ColCounterpartPhone,
	"counterpartemail": ColCounterpartEmail,
	"principalemail":   ColCounterpartEmail,
	"organization":     ColOrganization,
	"isorganization":   ColOrganization,
}

// substringMappings is the second inference step. More specific
// substrings come first.
var substringMappings = []struct {
	Substring string
	Target    string
}{
	{"counterpartphone", ColCounterpartPhone},
	{"counterpartemail", ColCounterpartEmail},
	{"counterpart", ColCounterpartID},
	{"externalid", ColExternalID},
	{"email", ColEmail},
	{"mail", ColEmail},
	{"phone", ColPhone},
	{"mobile", ColPhone},
	{"fullname", ColFullName},
	{"name", ColFullName},
	{"status", ColStatus},
	{"group", ColGroupKey},
}

// InferMappings returns header -> column for every header it recognizes.
//
//  1. "secret_<name>" and "secret:<name>" headers map to secret columns
//  2. exact match of the normalized header against HeaderMappings
//  3. substring match
//  4. anything else is left unmapped
//
// Each column is claimed by the first header that maps to it.
func InferMappings(headers []string) map[string]string {
	result := make(map[string]string, len(headers))
	used := make(map[string]bool)

	claim := func(header, target string) bool {
		if used[target] {
			return false
		}
		result[header] = target
		used[target] = true
		return true
	}

	for _, header := range headers {
		lower := strings.ToLower(strings.TrimSpace(header))
		if name, ok := secretName(lower); ok {
			claim(header, secretPrefix+name)
			continue
		}

		normalized := normalizeHeader(header)
		if target, ok := HeaderMappings[normalized]; ok && claim(header, target) {
			continue
		}
		for _, sm := range substringMappings {
			if strings.Contains(normalized, sm.Substring) && claim(header, sm.Target) {
				break
			}
		}
	}
	return result
}

func secretName(lower string) (string, bool) {
	for _, p := range []string{"secret:", "secret_"} {
		if name, ok := strings.CutPrefix(lower, p); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

// normalizeHeader lowercases a header and strips whitespace, underscores
// and hyphens.
func normalizeHeader(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	return strings.NewReplacer(" ", "", "_", "", "-", "", " ", "").Replace(s)
}

package match

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Scorer returns a similarity in [0,1] for two name keys.
type Scorer func(a, b string) float64

// Similarity is 1 - distance/max(len(a), len(b)), lengths in runes.
// Two empty strings score 0: an absent name is never evidence of identity.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// Package match pairs canonical entities with downstream records.
//
// Matching runs in two passes. The exact pass looks the canonical external
// id up in every record's match keys; the fuzzy pass compares normalized
// full names by Levenshtein similarity and accepts only a score strictly
// above the threshold.
//
// MatchAll claims records from a shared pool so the result is a partial
// injection: a downstream record is paired with at most one canonical
// entity and vice versa. Every exact claim is settled before any fuzzy
// scoring starts, and live entities score before removable ones.
//
// Ties between equally scored candidates are never silent. Under TieFirst
// the first candidate in pool order wins and the tie is returned for
// review; under TieReview the entity is left unmatched instead.
package match

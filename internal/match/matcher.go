package match

import (
	"log/slog"

	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/normalize"
)

// DefaultThreshold is the similarity a fuzzy candidate must exceed.
const DefaultThreshold = 0.95

// TiePolicy decides what happens when several candidates share the best
// fuzzy score.
type TiePolicy string

const (
	// TieFirst pairs the first tied candidate in pool order and reports the tie.
	TieFirst TiePolicy = "first"

	// TieReview withholds the match; the entity is treated as unmatched.
	TieReview TiePolicy = "review"
)

// Valid reports whether p is a known policy.
func (p TiePolicy) Valid() bool {
	return p == TieFirst || p == TieReview
}

// Tie records a fuzzy match that could not be decided by score alone.
type Tie struct {
	ExternalID string   `json:"external_id"`
	FullName   string   `json:"full_name"`
	Candidates []string `json:"candidates"`
	Score      float64  `json:"score"`

	// Chosen is the downstream id that was paired, empty under TieReview.
	Chosen string `json:"chosen,omitempty"`
}

// Matcher resolves canonical entities to downstream records.
//
// A Matcher holds configuration only and may be shared by goroutines.
type Matcher struct {
	threshold float64
	scorer    Scorer
	ties      TiePolicy
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = t }
}

// WithScorer replaces Similarity. Scorers receive name keys, not raw names.
func WithScorer(s Scorer) Option {
	return func(m *Matcher) {
		if s != nil {
			m.scorer = s
		}
	}
}

// WithTiePolicy sets the tie policy. Unknown policies are ignored.
func WithTiePolicy(p TiePolicy) Option {
	return func(m *Matcher) {
		if p.Valid() {
			m.ties = p
		}
	}
}

// New creates a Matcher with the default threshold, scorer and TieFirst.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		threshold: DefaultThreshold,
		scorer:    Similarity,
		ties:      TieFirst,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match resolves a single entity against pool. It never fails; an
// unmatched entity yields a result of kind none.
//
// Match is stateless: calling it for several entities against the same
// pool can pair two entities with one record. Use MatchAll for a pass.
func (m *Matcher) Match(c model.CanonicalEntity, pool []model.DownstreamEntity) model.MatchResult {
	p := newPool(pool)
	if r, ok := m.exact(&c, p); ok {
		return r
	}
	r, _ := m.fuzzy(&c, p)
	return r
}

// Result is the outcome of MatchAll.
type Result struct {
	// Matches is aligned with the canonical input: Matches[i] belongs to
	// canonical[i]. Unmatched entries have kind none.
	Matches []model.MatchResult

	// Ties lists every fuzzy tie in canonical input order.
	Ties []Tie

	// Orphans are downstream records no canonical entity claimed, in
	// snapshot order.
	Orphans []model.DownstreamEntity
}

// MatchAll pairs every canonical entity with at most one downstream record
// and every record with at most one entity.
//
// Order of claims:
//  1. exact pass over all entities, in input order
//  2. fuzzy pass over live entities (and entities without a role)
//  3. fuzzy pass over the remaining entities against what is left
func (m *Matcher) MatchAll(canonical []model.CanonicalEntity, downstream []model.DownstreamEntity) *Result {
	p := newPool(downstream)
	res := &Result{Matches: make([]model.MatchResult, len(canonical))}

	for i := range canonical {
		c := &canonical[i]
		if r, ok := m.exact(c, p); ok {
			res.Matches[i] = r
			continue
		}
		res.Matches[i] = model.MatchResult{Canonical: c, Kind: model.MatchNone}
	}

	ties := make(map[int]Tie)
	fuzzyPass := func(want func(model.Role) bool) {
		for i := range canonical {
			c := &canonical[i]
			if res.Matches[i].Matched() || !want(c.Role) {
				continue
			}
			r, tie := m.fuzzy(c, p)
			res.Matches[i] = r
			if tie != nil {
				ties[i] = *tie
			}
		}
	}
	primary := func(r model.Role) bool { return r == model.RoleNone || r.Live() }
	fuzzyPass(primary)
	fuzzyPass(func(r model.Role) bool { return !primary(r) })

	for i := range canonical {
		if t, ok := ties[i]; ok {
			res.Ties = append(res.Ties, t)
		}
	}
	res.Orphans = p.unclaimed()
	return res
}

func (m *Matcher) exact(c *model.CanonicalEntity, p *pool) (model.MatchResult, bool) {
	i, ok := p.byKey(c.ExternalID)
	if !ok {
		return model.MatchResult{}, false
	}
	p.claim(i)
	return model.MatchResult{
		Canonical:  c,
		Downstream: &p.entries[i],
		Kind:       model.MatchExact,
		Score:      1.0,
	}, true
}

func (m *Matcher) fuzzy(c *model.CanonicalEntity, p *pool) (model.MatchResult, *Tie) {
	none := model.MatchResult{Canonical: c, Kind: model.MatchNone}

	key := normalize.NameKey(c.FullName)
	if key == "" {
		return none, nil
	}

	best := -1.0
	var tied []int
	for i := range p.entries {
		if p.claimed[i] || p.keys[i] == "" {
			continue
		}
		score := m.scorer(key, p.keys[i])
		switch {
		case score > best:
			best = score
			tied = append(tied[:0], i)
		case score == best:
			tied = append(tied, i)
		}
	}

	if len(tied) == 0 || best <= m.threshold {
		return none, nil
	}

	var tie *Tie
	if len(tied) > 1 {
		tie = &Tie{
			ExternalID: c.ExternalID,
			FullName:   c.FullName,
			Score:      best,
		}
		for _, i := range tied {
			tie.Candidates = append(tie.Candidates, p.entries[i].DownstreamID)
		}
		if m.ties == TieReview {
			slog.Info("fuzzy tie withheld for review",
				"external_id", c.ExternalID,
				"candidates", tie.Candidates,
				"score", best,
			)
			return none, tie
		}
		tie.Chosen = p.entries[tied[0]].DownstreamID
		slog.Warn("fuzzy tie resolved by pool order",
			"external_id", c.ExternalID,
			"chosen", tie.Chosen,
			"candidates", tie.Candidates,
			"score", best,
		)
	}

	i := tied[0]
	p.claim(i)
	return model.MatchResult{
		Canonical:  c,
		Downstream: &p.entries[i],
		Kind:       model.MatchFuzzy,
		Score:      best,
	}, tie
}

package match

import (
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/normalize"
)

// pool is a downstream snapshot with claim tracking.
// entries is a private copy; results point into it.
type pool struct {
	entries []model.DownstreamEntity
	keys    []string
	claimed []bool
	index   map[string][]int
}

func newPool(ds []model.DownstreamEntity) *pool {
	p := &pool{
		entries: make([]model.DownstreamEntity, len(ds)),
		keys:    make([]string, len(ds)),
		claimed: make([]bool, len(ds)),
		index:   make(map[string][]int),
	}
	copy(p.entries, ds)
	for i := range p.entries {
		p.keys[i] = normalize.NameKey(p.entries[i].FullName())
		for _, k := range p.entries[i].MatchKeys {
			if k != "" {
				p.index[k] = append(p.index[k], i)
			}
		}
	}
	return p
}

// byKey returns the first unclaimed record carrying key.
func (p *pool) byKey(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	for _, i := range p.index[key] {
		if !p.claimed[i] {
			return i, true
		}
	}
	return 0, false
}

func (p *pool) claim(i int) {
	p.claimed[i] = true
}

func (p *pool) unclaimed() []model.DownstreamEntity {
	var out []model.DownstreamEntity
	for i := range p.entries {
		if !p.claimed[i] {
			out = append(out, p.entries[i])
		}
	}
	return out
}

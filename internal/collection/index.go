// Package collection holds an immutable, scored view over one dataset's species.
package collection

import (
	"sort"

	"github.com/siftrapp/siftr-server/internal/domain"
)

// Index owns a fixed species list and its attribute universe. It is never
// mutated after New returns, so concurrent readers need no locking.
type Index struct {
	species      []*domain.Species
	byName       map[string]*domain.Species
	universe     domain.Attributes
	dependencies map[string][]domain.Dependency
}

// New builds an index over species. The slice is copied; the species
// themselves must not be modified afterwards.
func New(species []*domain.Species) *Index {
	list := make([]*domain.Species, len(species))
	copy(list, species)

	byName := make(map[string]*domain.Species, len(list))
	for _, s := range list {
		// First occurrence wins for duplicate names.
		if _, ok := byName[s.Name]; !ok {
			byName[s.Name] = s
		}
	}

	return &Index{
		species:      list,
		byName:       byName,
		universe:     BuildUniverse(list),
		dependencies: map[string][]domain.Dependency{},
	}
}

// BuildUniverse collects every observed value per attribute key, skipping the
// unavailable sentinel. Keys whose only value is the sentinel are omitted.
func BuildUniverse(species []*domain.Species) domain.Attributes {
	universe := domain.Attributes{}
	for _, s := range species {
		for key, values := range s.Attributes {
			for v := range values {
				if v == domain.Unavailable {
					continue
				}
				set, ok := universe[key]
				if !ok {
					set = domain.ValueSet{}
					universe[key] = set
				}
				set.Add(v)
			}
		}
	}
	return universe
}

// Len returns the number of species.
func (ix *Index) Len() int {
	return len(ix.species)
}

// Species returns the species in input order. Callers must not modify it.
func (ix *Index) Species() []*domain.Species {
	return ix.species
}

// Attributes returns the attribute universe. Callers must not modify it.
func (ix *Index) Attributes() domain.Attributes {
	return ix.universe
}

// Dependencies returns the visibility rules per attribute key. The map is
// always empty; no rule source exists yet and scoring ignores it.
func (ix *Index) Dependencies() map[string][]domain.Dependency {
	return ix.dependencies
}

// Lookup finds a species by scientific name.
func (ix *Index) Lookup(name string) (*domain.Species, bool) {
	s, ok := ix.byName[name]
	return s, ok
}

// Score rates how well s fits q, in [0, 1]. Each query key with a non-empty
// value set counts once; it matches when the species records the unavailable
// sentinel for the key or shares any value with the query. A query with no
// constrained keys scores 1.
func Score(s *domain.Species, q domain.Query) float64 {
	var n, d int
	for key, want := range q {
		if want.Len() == 0 {
			continue
		}
		d++
		mine := s.Values(key)
		if mine.Has(domain.Unavailable) || mine.Intersects(want) {
			n++
		}
	}
	if d == 0 {
		return 1
	}
	return float64(n) / float64(d)
}

// Rank scores every species against q and sorts best first. Equal scores keep
// input order.
func (ix *Index) Rank(q domain.Query) []domain.Match {
	matches := make([]domain.Match, len(ix.species))
	for i, s := range ix.species {
		matches[i] = domain.Match{Species: s, Score: Score(s, q)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Top is Rank truncated to limit entries. A non-positive limit returns all.
func (ix *Index) Top(q domain.Query, limit int) []domain.Match {
	matches := ix.Rank(q)
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches
}

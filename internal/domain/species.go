package domain

import (
	"encoding/json"
	"maps"
	"slices"
)

// Unavailable marks an attribute whose value was not recorded for a species.
// A species carrying it for a key matches any query on that key.
const Unavailable = "unavailable"

// ValueSet is an unordered set of canonical attribute values.
// The zero value is an empty, read-only set; use NewValueSet or Add on a made set.
type ValueSet map[string]struct{}

// NewValueSet builds a set from the given values. Duplicates collapse.
func NewValueSet(values ...string) ValueSet {
	s := make(ValueSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is a member of the set.
func (s ValueSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v into the set.
func (s ValueSet) Add(v string) {
	s[v] = struct{}{}
}

// Len returns the number of members.
func (s ValueSet) Len() int {
	return len(s)
}

// Union adds every member of other to s.
func (s ValueSet) Union(other ValueSet) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Intersects reports whether s and other share at least one member.
func (s ValueSet) Intersects(other ValueSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for v := range small {
		if large.Has(v) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the set.
func (s ValueSet) Clone() ValueSet {
	if s == nil {
		return ValueSet{}
	}
	return maps.Clone(s)
}

// Sorted returns the members in ascending order.
func (s ValueSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// MarshalJSON encodes the set as a sorted string array.
func (s ValueSet) MarshalJSON() ([]byte, error) {
	values := s.Sorted()
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// UnmarshalJSON decodes a string array into the set.
func (s *ValueSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewValueSet(values...)
	return nil
}

// Attributes maps a canonical attribute key to its value set.
type Attributes map[string]ValueSet

// Keys returns the attribute keys in ascending order.
func (a Attributes) Keys() []string {
	return slices.Sorted(maps.Keys(a))
}

// Clone deep-copies the attribute map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// Query is a user's partial description of an unknown plant.
// An empty value set for a key places no constraint on that key.
type Query map[string]ValueSet

// NewQuery converts plain string slices into a Query.
// Values are used as given; callers canonicalize them first.
func NewQuery(raw map[string][]string) Query {
	q := make(Query, len(raw))
	for k, values := range raw {
		q[k] = NewValueSet(values...)
	}
	return q
}

// Species is one normalized plant record.
type Species struct {
	Name        string            `json:"name"`                   // Scientific name, never empty
	DisplayName string            `json:"display_name,omitempty"` // Common name
	Family      string            `json:"family"`                 // Text inside the first parentheses of the family cell
	Description string            `json:"description,omitempty"`
	Attributes  Attributes        `json:"attributes"`
	Tabs        map[string]string `json:"tabs,omitempty"`  // Extra description sections keyed by tab name
	Facts       map[string]string `json:"facts,omitempty"` // Free-form "info" facts
}

// Values returns the value set recorded for key, or an empty set when the
// species has no entry for it.
func (s *Species) Values(key string) ValueSet {
	if v, ok := s.Attributes[key]; ok {
		return v
	}
	return ValueSet{}
}

// Dependency is a conditional-visibility rule for a query row: the row only
// makes sense once Column has (or, with Negate, lacks) Value.
// Rules are carried through the API untouched; nothing evaluates them yet.
type Dependency struct {
	Column string `json:"column"`
	Value  string `json:"value"`
	Negate bool   `json:"negate,omitempty"`
}

// Match pairs a species with its score against a query.
type Match struct {
	Species *Species `json:"species"`
	Score   float64  `json:"score"`
}

package normalize

import (
	"fmt"
	"math"

	"github.com/siftrapp/siftr-server/internal/domain"
)

// HeightKey is the attribute rewritten by the bucketing pass.
const HeightKey = "plant height"

// HeightBuckets is the number of equal-width ranges heights are folded into.
const HeightBuckets = 8

// Bucket is an inclusive integer range of plant heights.
type Bucket struct {
	Lower int
	Upper int
}

// Label renders the bucket as it appears in attribute values: "10 to 17".
func (b Bucket) Label() string {
	return fmt.Sprintf("%d to %d", b.Lower, b.Upper)
}

func (b Bucket) overlaps(lo, hi int) bool {
	return !(hi < b.Lower || lo > b.Upper)
}

// HeightRange splits [lo, hi] into HeightBuckets contiguous ranges. The last
// range always ends at hi. Ranges may be empty (Upper < Lower) when the span
// is narrower than the bucket count.
func HeightRange(lo, hi int) []Bucket {
	span := float64(hi - lo)
	edge := func(i int) int {
		return int(math.Floor(float64(lo) + span*float64(i)/HeightBuckets))
	}

	buckets := make([]Bucket, HeightBuckets)
	for i := range HeightBuckets {
		buckets[i] = Bucket{Lower: edge(i), Upper: edge(i+1) - 1}
	}
	buckets[HeightBuckets-1].Upper++
	return buckets
}

// BucketHeights replaces every species' plant height values with the labels
// of the global height buckets its own range overlaps. Species without a
// parseable height end up with an empty set, except that the unavailable
// sentinel is carried over. It reports whether the pass ran: nothing changes
// when no species has a parseable height.
func BucketHeights(species []*domain.Species) bool {
	type span struct {
		lo, hi int
		ok     bool
	}

	spans := make([]span, len(species))
	globalLo, globalHi, found := 0, 0, false

	for i, s := range species {
		for v := range s.Attributes[HeightKey] {
			h, ok := LeadingInt(v)
			if !ok {
				continue
			}
			sp := &spans[i]
			if !sp.ok {
				sp.lo, sp.hi, sp.ok = h, h, true
			} else {
				sp.lo, sp.hi = min(sp.lo, h), max(sp.hi, h)
			}
			if !found {
				globalLo, globalHi, found = h, h, true
			} else {
				globalLo, globalHi = min(globalLo, h), max(globalHi, h)
			}
		}
	}
	if !found {
		return false
	}

	buckets := HeightRange(globalLo, globalHi)
	for i, s := range species {
		labels := domain.ValueSet{}
		if s.Values(HeightKey).Has(domain.Unavailable) {
			labels.Add(domain.Unavailable)
		}
		if spans[i].ok {
			for _, b := range buckets {
				if b.Upper < b.Lower {
					continue
				}
				if b.overlaps(spans[i].lo, spans[i].hi) {
					labels.Add(b.Label())
				}
			}
		}
		if s.Attributes == nil {
			s.Attributes = domain.Attributes{}
		}
		s.Attributes[HeightKey] = labels
	}
	return true
}

// LeadingInt parses the integer at the start of s, after optional spaces and
// a sign: "3 to 5 ft" -> 3, "12ft" -> 12. Anything else reports false.
func LeadingInt(s string) (int, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	start := i
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		if n > (math.MaxInt32-9)/10 {
			break
		}
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i == start {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// Package normalize turns raw spreadsheet rows into canonical species records.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Runs of whitespace or underscores collapse to a single space.
	separatorRun = regexp.MustCompile(`[\s_]+`)
	// Any non-alphanumeric run becomes one hyphen in slugs.
	slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

// valueFixups rewrites known spelling variants after canonicalization.
//
//nolint:gochecknoglobals // Static lookup table
var valueFixups = map[string]string{
	"orbiculate":         "orbicular",
	"orbiculate (round)": "orbicular",
}

// Canonicalize applies the canonical form used for headers and attribute
// values: Unicode compatibility folding, collapsed separators, lower case.
//
//	"  Leaf__Shape " -> "leaf shape"
//	"Flower\tColor"  -> "flower color"
func Canonicalize(s string) string {
	if !isASCII(s) {
		s = norm.NFKC.String(s)
	}
	s = separatorRun.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// CanonicalValue canonicalizes one attribute value token and applies the
// value fixup table.
//
//	"Orbiculate (round)" -> "orbicular"
//	"<  3 ft"            -> "<3 ft"
func CanonicalValue(token string) string {
	v := Canonicalize(token)
	if fixed, ok := valueFixups[v]; ok {
		return fixed
	}
	switch {
	case strings.HasPrefix(v, "< "):
		return "<" + v[2:]
	case strings.HasPrefix(v, "> "):
		return ">" + v[2:]
	}
	return v
}

// SplitValues splits a comma-separated cell into canonical value tokens,
// dropping empty ones. The returned slice preserves cell order and may
// contain duplicates.
func SplitValues(cell string) []string {
	parts := strings.Split(cell, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := CanonicalValue(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Slugify converts a dataset name to a URL-safe slug.
// "Herbs & Forbs" -> "herbs-forbs".
// "Broadleaf_Trees" -> "broadleaf-trees".
func Slugify(s string) string {
	// Decompose accents so the base letter survives the ASCII filter.
	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = slugSeparator.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

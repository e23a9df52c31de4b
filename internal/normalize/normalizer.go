package normalize

import (
	"log/slog"
	"strings"

	"github.com/siftrapp/siftr-server/internal/domain"
	applog "github.com/siftrapp/siftr-server/internal/logger"
)

// Cell is one (header, value) pair of a raw row. Absent cells are "".
type Cell struct {
	Header string
	Value  string
}

// Row is a raw record in source column order. Column order matters: numbered
// duplicate columns merge in the order they appear.
type Row []Cell

// RowFromRecord builds a Row from parallel header and value slices.
// Missing trailing values become "".
func RowFromRecord(headers, values []string) Row {
	row := make(Row, 0, len(headers))
	for i, h := range headers {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		row = append(row, Cell{Header: h, Value: v})
	}
	return row
}

// Attribute keys that are always removed from a finished record. Source
// sheets carried a plant type column that the loader defaulted and then
// threw away; the net effect is that neither key ever survives.
//
//nolint:gochecknoglobals // Static lookup table
var discardedKeys = []string{"planttype", "tree type"}

// Header prefixes routed to description tabs and facts.
const (
	tabPrefix      = "description "
	shortTabPrefix = "d-"
	factPrefix     = "info "
)

// Result is the outcome of normalizing a batch of rows.
type Result struct {
	Species []*domain.Species
	Dropped int // Rows skipped for lacking a scientific name
}

// Normalizer converts raw rows into species records.
type Normalizer struct {
	logger *slog.Logger
}

// New creates a Normalizer. A nil logger discards diagnostics.
func New(logger *slog.Logger) *Normalizer {
	logger = applog.OrDiscard(logger)
	return &Normalizer{logger: logger}
}

// Batch normalizes every row, drops rows without a scientific name, and then
// runs the plant height bucketing pass across the surviving species.
// Output order follows input order.
func (n *Normalizer) Batch(rows []Row) Result {
	res := Result{Species: make([]*domain.Species, 0, len(rows))}
	for i, row := range rows {
		s, ok := Species(row)
		if !ok {
			res.Dropped++
			n.logger.Debug("dropping row without scientific name", "row", i+1)
			continue
		}
		res.Species = append(res.Species, s)
	}

	if BucketHeights(res.Species) {
		n.logger.Debug("bucketed plant heights", "species", len(res.Species))
	}
	return res
}

// Species normalizes a single row. It reports false when the row has no
// usable scientific name.
func Species(row Row) (*domain.Species, bool) {
	s := &domain.Species{Attributes: domain.Attributes{}}

	for _, cell := range row {
		header := Canonicalize(cell.Header)
		if header == "" {
			continue
		}
		applyCell(s, header, cell.Value)
	}

	for _, key := range discardedKeys {
		delete(s.Attributes, key)
	}

	if strings.TrimSpace(s.Name) == "" {
		return nil, false
	}
	return s, true
}

func applyCell(s *domain.Species, header, value string) {
	switch header {
	case "name", "scientific name":
		// A blank duplicate name column never clears an earlier one.
		if v := strings.TrimSpace(value); v != "" {
			s.Name = v
		}
		return
	case "common name":
		s.DisplayName = strings.TrimSpace(value)
		return
	case "genus", "species":
		return
	case "family":
		s.Family = parenthesized(value)
		return
	case "description", "d-description":
		s.Description = strings.TrimSpace(value)
		return
	}

	if suffix, ok := cutPrefix(header, tabPrefix, shortTabPrefix); ok {
		setText(&s.Tabs, suffix, value)
		return
	}
	if suffix, ok := cutPrefix(header, factPrefix); ok {
		setText(&s.Facts, suffix, value)
		return
	}

	addAttribute(s.Attributes, MergeKey(header), value)
}

// MergeKey folds a numbered or starred duplicate column onto its base key:
// "color2" -> "color", "leaf shape*" -> "leaf shape".
func MergeKey(header string) string {
	if header == "" {
		return header
	}
	last := header[len(header)-1]
	if (last >= '0' && last <= '9') || last == '*' {
		return strings.TrimSpace(header[:len(header)-1])
	}
	return header
}

func addAttribute(attrs domain.Attributes, key, value string) {
	if key == "" {
		return
	}
	tokens := SplitValues(value)
	if len(tokens) == 0 {
		return
	}
	set, ok := attrs[key]
	if !ok {
		set = make(domain.ValueSet, len(tokens))
		attrs[key] = set
	}
	for _, t := range tokens {
		set.Add(t)
	}
}

func setText(dst *map[string]string, key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string)
	}
	(*dst)[key] = value
}

func cutPrefix(header string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if suffix, ok := strings.CutPrefix(header, p); ok && suffix != "" {
			return suffix, true
		}
	}
	return "", false
}

// parenthesized returns the text between the first "(" and the next ")".
// Anything malformed yields "".
//
//	"Maple (Aceraceae)" -> "Aceraceae"
func parenthesized(value string) string {
	_, rest, ok := strings.Cut(value, "(")
	if !ok {
		return ""
	}
	inner, _, ok := strings.Cut(rest, ")")
	if !ok {
		return ""
	}
	return strings.TrimSpace(inner)
}

// Package search provides full-text search over species descriptive text
// using Bleve. Documents are grouped by dataset so a query can be scoped to
// one plant category.
package search

import (
	"fmt"
	"slices"
	"strings"

	"github.com/siftrapp/siftr-server/internal/domain"
)

// SpeciesDocument is the Bleve document for one species row.
//
// Tabs and facts are flattened to their text; the section names are
// searchable too so "bloom" matches a "bloom" tab.
type SpeciesDocument struct {
	ID          string   `json:"id"`
	DatasetID   string   `json:"dataset_id"`
	Position    int      `json:"position"`
	Name        string   `json:"name"`
	CommonName  string   `json:"common_name,omitempty"`
	Family      string   `json:"family,omitempty"`
	Description string   `json:"description,omitempty"`
	Tabs        []string `json:"tabs,omitempty"`
	Facts       []string `json:"facts,omitempty"`
}

// DocumentID builds the index key for the species at position in a dataset.
// Positions keep duplicate scientific names apart.
func DocumentID(datasetID string, position int) string {
	return fmt.Sprintf("%s/%08d", datasetID, position)
}

// SpeciesToDocument converts a species to its search document.
func SpeciesToDocument(datasetID string, position int, s *domain.Species) *SpeciesDocument {
	return &SpeciesDocument{
		ID:          DocumentID(datasetID, position),
		DatasetID:   datasetID,
		Position:    position,
		Name:        s.Name,
		CommonName:  s.DisplayName,
		Family:      s.Family,
		Description: s.Description,
		Tabs:        flatten(s.Tabs),
		Facts:       flatten(s.Facts),
	}
}

// flatten renders "key: value" entries in key order.
func flatten(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimSpace(k+": "+m[k]))
	}
	return out
}

// ToMap converts the document to the field layout the mapping expects.
func (d *SpeciesDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"dataset_id": d.DatasetID,
		"position":   float64(d.Position),
		"name":       d.Name,
	}
	if d.CommonName != "" {
		m["common_name"] = d.CommonName
	}
	if d.Family != "" {
		m["family"] = d.Family
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if len(d.Tabs) > 0 {
		m["tabs"] = d.Tabs
	}
	if len(d.Facts) > 0 {
		m["facts"] = d.Facts
	}
	return m
}

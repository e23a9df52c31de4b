package domain

import "time"

// Source file formats accepted for datasets.
const (
	FormatCSV = "csv"
	FormatTSV = "tsv"
)

// Dataset describes one loaded species collection, typically a plant category
// such as "broadleaf-trees" or "conifers".
type Dataset struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"` // URL-safe key: "herbs-forbs"
	Name         string    `json:"name"` // Display name: "Herbs & Forbs"
	Source       string    `json:"source,omitempty"`
	Format       string    `json:"format"`
	HeaderRow    int       `json:"header_row"` // Banner rows skipped before the header
	SpeciesCount int       `json:"species_count"`
	DroppedRows  int       `json:"dropped_rows"` // Rows rejected for lacking a scientific name
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp. The new stamp is always later than
// the previous one.
func (d *Dataset) Touch() {
	now := time.Now()
	if !now.After(d.UpdatedAt) {
		now = d.UpdatedAt.Add(time.Nanosecond)
	}
	d.UpdatedAt = now
}

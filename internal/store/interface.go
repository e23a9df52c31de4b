// Package store defines the persistence interface for the Siftr server.
package store

import (
	"context"

	"github.com/siftrapp/siftr-server/internal/domain"
)

// Store defines every persistence operation the services rely on.
// Implementations live in store/kv (Badger) and store/sqlite.
type Store interface {
	// Lifecycle
	Close() error
	SetSearchIndexer(indexer SearchIndexer)

	// Datasets
	CreateDataset(ctx context.Context, ds *domain.Dataset) error
	GetDataset(ctx context.Context, id string) (*domain.Dataset, error)
	GetDatasetBySlug(ctx context.Context, slug string) (*domain.Dataset, error)
	ListDatasets(ctx context.Context) ([]*domain.Dataset, error)
	UpdateDataset(ctx context.Context, ds *domain.Dataset) error
	// DeleteDataset removes the dataset and all of its species.
	DeleteDataset(ctx context.Context, id string) error

	// Species

	// ReplaceSpecies swaps a dataset's species for the given list in one
	// step. Readers see either the old list or the new one.
	ReplaceSpecies(ctx context.Context, datasetID string, species []*domain.Species) error
	// ListSpecies returns species in the order they were written.
	ListSpecies(ctx context.Context, datasetID string) ([]*domain.Species, error)
	GetSpecies(ctx context.Context, datasetID, name string) (*domain.Species, error)
}

// SearchIndexer keeps the full-text index in sync with species writes.
// Stores call it after a successful commit; index failures are logged by the
// store and never fail the write.
type SearchIndexer interface {
	IndexSpecies(ctx context.Context, datasetID string, species []*domain.Species) error
	DeleteDataset(ctx context.Context, datasetID string) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// IndexSpecies is a no-op.
func (NoopSearchIndexer) IndexSpecies(context.Context, string, []*domain.Species) error { return nil }

// DeleteDataset is a no-op.
func (NoopSearchIndexer) DeleteDataset(context.Context, string) error { return nil }

// NewNoopSearchIndexer creates a new no-op search indexer.
func NewNoopSearchIndexer() SearchIndexer {
	return NoopSearchIndexer{}
}

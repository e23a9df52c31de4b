package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siftrapp/siftr-server/internal/domain"
	applog "github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/search"
	"github.com/siftrapp/siftr-server/internal/store"
)

// SearchService bridges the Bleve index with the store. It is installed as
// the store's search indexer so species writes reach the index.
type SearchService struct {
	index  *search.SearchIndex
	store  store.Store
	logger *slog.Logger
}

var _ store.SearchIndexer = (*SearchService)(nil)

// NewSearchService creates a new search service.
func NewSearchService(index *search.SearchIndex, store store.Store, logger *slog.Logger) *SearchService {
	logger = applog.OrDiscard(logger)
	return &SearchService{
		index:  index,
		store:  store,
		logger: logger,
	}
}

// Search runs a free-text query. params.DatasetID may hold a dataset ID or
// slug; it is resolved to the ID before querying.
func (s *SearchService) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	if params.DatasetID != "" {
		ds, err := resolveDataset(ctx, s.store, params.DatasetID)
		if err != nil {
			return nil, err
		}
		params.DatasetID = ds.ID
	}
	return s.index.Search(ctx, params)
}

// IndexSpecies replaces the indexed documents of a dataset.
func (s *SearchService) IndexSpecies(ctx context.Context, datasetID string, species []*domain.Species) error {
	if err := s.index.IndexSpecies(ctx, datasetID, species); err != nil {
		return fmt.Errorf("index species: %w", err)
	}
	return nil
}

// DeleteDataset removes a dataset's documents from the index.
func (s *SearchService) DeleteDataset(ctx context.Context, datasetID string) error {
	return s.index.DeleteDataset(ctx, datasetID)
}

// DocumentCount returns the number of indexed documents.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}

// ReindexAll rebuilds the index from every stored dataset.
// This is a heavy operation; the server runs it when the index comes up
// empty while the store has data.
func (s *SearchService) ReindexAll(ctx context.Context) error {
	s.logger.Info("starting full reindex")

	if err := s.index.Rebuild(); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	datasets, err := s.store.ListDatasets(ctx)
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}

	total := 0
	for _, ds := range datasets {
		species, err := s.store.ListSpecies(ctx, ds.ID)
		if err != nil {
			return fmt.Errorf("list species of %s: %w", ds.Slug, err)
		}
		if err := s.index.IndexSpecies(ctx, ds.ID, species); err != nil {
			return fmt.Errorf("index %s: %w", ds.Slug, err)
		}
		total += len(species)
	}

	s.logger.Info("full reindex complete", "datasets", len(datasets), "species", total)
	return nil
}

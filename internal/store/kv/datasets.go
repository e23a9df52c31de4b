package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/store"
)

// CreateDataset stores a new dataset.
// Returns store.ErrAlreadyExists when the ID or slug is taken.
func (s *Store) CreateDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds.ID == "" || ds.Slug == "" {
		return store.ErrInvalidInput.WithMessage("dataset id and slug are required")
	}
	return s.datasets.Create(ctx, ds.ID, ds)
}

// GetDataset retrieves a dataset by ID.
func (s *Store) GetDataset(ctx context.Context, id string) (*domain.Dataset, error) {
	ds, err := s.datasets.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrDatasetNotFound
	}
	return ds, err
}

// GetDatasetBySlug retrieves a dataset by slug.
func (s *Store) GetDatasetBySlug(ctx context.Context, slug string) (*domain.Dataset, error) {
	ds, err := s.datasets.GetByIndex(ctx, "slug", slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrDatasetNotFound
	}
	return ds, err
}

// ListDatasets returns all datasets ordered by slug.
func (s *Store) ListDatasets(ctx context.Context) ([]*domain.Dataset, error) {
	datasets := []*domain.Dataset{}
	for ds, err := range s.datasets.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		datasets = append(datasets, ds)
	}
	sortBySlug(datasets)
	return datasets, nil
}

// UpdateDataset replaces a dataset's metadata.
func (s *Store) UpdateDataset(ctx context.Context, ds *domain.Dataset) error {
	err := s.datasets.Update(ctx, ds.ID, ds)
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrDatasetNotFound
	}
	return err
}

// DeleteDataset removes a dataset and every species generation it owns.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	if _, err := s.GetDataset(ctx, id); err != nil {
		return err
	}
	if err := s.dropSpecies(ctx, id); err != nil {
		return err
	}
	if err := s.datasets.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.searchIndexer.DeleteDataset(ctx, id); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove dataset from search index", "dataset_id", id, "error", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/store"
)

// datasetColumns must match the scan order in scanDataset.
const datasetColumns = `id, slug, name, source, format, header_row, species_count, dropped_rows, created_at, updated_at`

func scanDataset(scanner interface{ Scan(dest ...any) error }) (*domain.Dataset, error) {
	var (
		d                    domain.Dataset
		createdAt, updatedAt string
	)
	err := scanner.Scan(
		&d.ID,
		&d.Slug,
		&d.Name,
		&d.Source,
		&d.Format,
		&d.HeaderRow,
		&d.SpeciesCount,
		&d.DroppedRows,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDataset inserts a new dataset.
// Returns store.ErrAlreadyExists on duplicate ID or slug.
func (s *Store) CreateDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds.ID == "" || ds.Slug == "" {
		return store.ErrInvalidInput.WithMessage("dataset id and slug are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.ID,
		ds.Slug,
		ds.Name,
		ds.Source,
		ds.Format,
		ds.HeaderRow,
		ds.SpeciesCount,
		ds.DroppedRows,
		formatTime(ds.CreatedAt),
		formatTime(ds.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// GetDataset retrieves a dataset by ID.
func (s *Store) GetDataset(ctx context.Context, id string) (*domain.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDatasetNotFound
	}
	return d, err
}

// GetDatasetBySlug retrieves a dataset by slug.
func (s *Store) GetDatasetBySlug(ctx context.Context, slug string) (*domain.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE slug = ?`, slug)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDatasetNotFound
	}
	return d, err
}

// ListDatasets returns all datasets ordered by slug.
func (s *Store) ListDatasets(ctx context.Context) ([]*domain.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY slug ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	datasets := []*domain.Dataset{}
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	return datasets, rows.Err()
}

// UpdateDataset replaces a dataset's metadata.
func (s *Store) UpdateDataset(ctx context.Context, ds *domain.Dataset) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE datasets SET
			slug = ?, name = ?, source = ?, format = ?, header_row = ?,
			species_count = ?, dropped_rows = ?, updated_at = ?
		WHERE id = ?`,
		ds.Slug,
		ds.Name,
		ds.Source,
		ds.Format,
		ds.HeaderRow,
		ds.SpeciesCount,
		ds.DroppedRows,
		formatTime(ds.UpdatedAt),
		ds.ID,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrDatasetNotFound
	}
	return nil
}

// DeleteDataset removes a dataset and its species.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM species WHERE dataset_id = ?`, id); err != nil {
		return fmt.Errorf("delete species: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrDatasetNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if err := s.searchIndexer.DeleteDataset(ctx, id); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove dataset from search index", "dataset_id", id, "error", err)
	}
	return nil
}

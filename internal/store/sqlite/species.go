package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/store"
)

// speciesColumns must match the scan order in scanSpecies.
const speciesColumns = `name, display_name, family, description, attributes, tabs, facts`

func scanSpecies(scanner interface{ Scan(dest ...any) error }) (*domain.Species, error) {
	var (
		sp                  domain.Species
		attrs, tabs, facts string
	)
	if err := scanner.Scan(&sp.Name, &sp.DisplayName, &sp.Family, &sp.Description, &attrs, &tabs, &facts); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(attrs), &sp.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes of %q: %w", sp.Name, err)
	}
	if sp.Attributes == nil {
		sp.Attributes = domain.Attributes{}
	}
	if err := json.Unmarshal([]byte(tabs), &sp.Tabs); err != nil {
		return nil, fmt.Errorf("decode tabs of %q: %w", sp.Name, err)
	}
	if err := json.Unmarshal([]byte(facts), &sp.Facts); err != nil {
		return nil, fmt.Errorf("decode facts of %q: %w", sp.Name, err)
	}
	if len(sp.Tabs) == 0 {
		sp.Tabs = nil
	}
	if len(sp.Facts) == 0 {
		sp.Facts = nil
	}
	return &sp, nil
}

// ReplaceSpecies deletes and re-inserts a dataset's species inside one
// transaction.
func (s *Store) ReplaceSpecies(ctx context.Context, datasetID string, species []*domain.Species) error {
	if _, err := s.GetDataset(ctx, datasetID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM species WHERE dataset_id = ?`, datasetID); err != nil {
		return fmt.Errorf("clear species: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO species (dataset_id, position, `+speciesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for pos, sp := range species {
		attrs, err := json.Marshal(sp.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes of %q: %w", sp.Name, err)
		}
		tabs, err := marshalText(sp.Tabs)
		if err != nil {
			return err
		}
		facts, err := marshalText(sp.Facts)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, datasetID, pos,
			sp.Name, sp.DisplayName, sp.Family, sp.Description,
			string(attrs), tabs, facts,
		); err != nil {
			return fmt.Errorf("insert species %q: %w", sp.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("species replaced", "dataset_id", datasetID, "count", len(species))
	}
	if err := s.searchIndexer.IndexSpecies(ctx, datasetID, species); err != nil && s.logger != nil {
		s.logger.Warn("failed to index species", "dataset_id", datasetID, "error", err)
	}
	return nil
}

// ListSpecies returns species in sheet order.
func (s *Store) ListSpecies(ctx context.Context, datasetID string) ([]*domain.Species, error) {
	if _, err := s.GetDataset(ctx, datasetID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+speciesColumns+` FROM species WHERE dataset_id = ? ORDER BY position ASC`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	species := []*domain.Species{}
	for rows.Next() {
		sp, err := scanSpecies(rows)
		if err != nil {
			return nil, err
		}
		species = append(species, sp)
	}
	return species, rows.Err()
}

// GetSpecies finds the first species with the given scientific name.
func (s *Store) GetSpecies(ctx context.Context, datasetID, name string) (*domain.Species, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+speciesColumns+` FROM species
		WHERE dataset_id = ? AND name = ?
		ORDER BY position ASC LIMIT 1`, datasetID, name)

	sp, err := scanSpecies(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSpeciesNotFound
	}
	return sp, err
}

func marshalText(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode text map: %w", err)
	}
	return string(data), nil
}

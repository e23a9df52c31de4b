package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/store"
)

// ReplaceSpecies writes species as a new generation, then flips the
// dataset's generation pointer in a single transaction and removes the old
// generation. Readers always see one complete list.
func (s *Store) ReplaceSpecies(ctx context.Context, datasetID string, species []*domain.Species) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.GetDataset(ctx, datasetID); err != nil {
		return err
	}

	var prev uint64
	var hadPrev bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		prev, hadPrev, err = currentGeneration(txn, datasetID)
		return err
	})
	if err != nil {
		return err
	}
	next := prev + 1

	bw := s.newBatchWriter(datasetID, next)
	for _, sp := range species {
		if err := bw.Add(sp); err != nil {
			bw.Cancel()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush species batch: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(generationKey(datasetID), binary.BigEndian.AppendUint64(nil, next))
	})
	if err != nil {
		return fmt.Errorf("switch species generation: %w", err)
	}

	if hadPrev {
		if err := s.deleteGeneration(datasetID, prev); err != nil && s.logger != nil {
			s.logger.Warn("failed to remove old species generation",
				"dataset_id", datasetID, "generation", prev, "error", err)
		}
	}

	if s.logger != nil {
		s.logger.Debug("species replaced", "dataset_id", datasetID, "count", bw.Count(), "generation", next)
	}
	if err := s.searchIndexer.IndexSpecies(ctx, datasetID, species); err != nil && s.logger != nil {
		s.logger.Warn("failed to index species", "dataset_id", datasetID, "error", err)
	}
	return nil
}

// ListSpecies returns the current generation in sheet order.
func (s *Store) ListSpecies(ctx context.Context, datasetID string) ([]*domain.Species, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.GetDataset(ctx, datasetID); err != nil {
		return nil, err
	}

	species := []*domain.Species{}
	err := s.db.View(func(txn *badger.Txn) error {
		gen, ok, err := currentGeneration(txn, datasetID)
		if err != nil || !ok {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(speciesGenPrefixFor(datasetID, gen))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var sp domain.Species
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sp)
			}); err != nil {
				return fmt.Errorf("decode species: %w", err)
			}
			species = append(species, &sp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return species, nil
}

// GetSpecies finds a species of the current generation by scientific name.
func (s *Store) GetSpecies(ctx context.Context, datasetID, name string) (*domain.Species, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sp domain.Species
	err := s.db.View(func(txn *badger.Txn) error {
		gen, ok, err := currentGeneration(txn, datasetID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrSpeciesNotFound
		}

		item, err := txn.Get(speciesNameKey(datasetID, gen, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrSpeciesNotFound
		}
		if err != nil {
			return err
		}
		recordKey, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return get(txn, recordKey, &sp)
	})
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// dropSpecies removes every generation of a dataset's species.
func (s *Store) dropSpecies(ctx context.Context, datasetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var keys [][]byte
	_ = s.db.View(func(txn *badger.Txn) error {
		keys = append(keys, keysWithPrefix(txn, speciesPrefix+datasetID+":")...)
		keys = append(keys, keysWithPrefix(txn, speciesNamePrefix+datasetID+":")...)
		return nil
	})
	keys = append(keys, generationKey(datasetID))
	return s.deleteKeys(keys)
}

func (s *Store) deleteGeneration(datasetID string, gen uint64) error {
	var keys [][]byte
	_ = s.db.View(func(txn *badger.Txn) error {
		keys = append(keys, keysWithPrefix(txn, speciesGenPrefixFor(datasetID, gen))...)
		keys = append(keys, keysWithPrefix(txn, speciesNameGenPrefix(datasetID, gen))...)
		return nil
	})
	return s.deleteKeys(keys)
}

func (s *Store) deleteKeys(keys [][]byte) error {
	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return fmt.Errorf("batch delete: %w", err)
		}
	}
	return wb.Flush()
}

func currentGeneration(txn *badger.Txn, datasetID string) (uint64, bool, error) {
	item, err := txn.Get(generationKey(datasetID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, false, err
	}
	if len(val) != 8 {
		return 0, false, fmt.Errorf("corrupt species generation for %s", datasetID)
	}
	return binary.BigEndian.Uint64(val), true, nil
}

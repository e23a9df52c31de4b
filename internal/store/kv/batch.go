package kv

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/siftrapp/siftr-server/internal/domain"
)

// BatchWriter bulk-writes one species generation using Badger's WriteBatch.
// Nothing it writes is visible to readers until the generation pointer moves.
type BatchWriter struct {
	batch     *badger.WriteBatch
	datasetID string
	gen       uint64
	count     int
	names     map[string]bool
}

// newBatchWriter starts a batch for the given dataset generation.
func (s *Store) newBatchWriter(datasetID string, gen uint64) *BatchWriter {
	return &BatchWriter{
		batch:     s.db.NewWriteBatch(),
		datasetID: datasetID,
		gen:       gen,
		names:     map[string]bool{},
	}
}

// Add appends a species at the next position.
func (b *BatchWriter) Add(sp *domain.Species) error {
	data, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshal species %q: %w", sp.Name, err)
	}

	key := speciesKey(b.datasetID, b.gen, b.count)
	if err := b.batch.Set(key, data); err != nil {
		return fmt.Errorf("batch set species: %w", err)
	}
	// Name lookups resolve to the first species with that name.
	if !b.names[sp.Name] {
		b.names[sp.Name] = true
		if err := b.batch.Set(speciesNameKey(b.datasetID, b.gen, sp.Name), key); err != nil {
			return fmt.Errorf("batch set name index: %w", err)
		}
	}
	b.count++
	return nil
}

// Count returns how many species were added.
func (b *BatchWriter) Count() int {
	return b.count
}

// Flush commits all pending writes.
func (b *BatchWriter) Flush() error {
	return b.batch.Flush()
}

// Cancel discards pending writes.
func (b *BatchWriter) Cancel() {
	b.batch.Cancel()
}

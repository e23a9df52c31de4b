package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/siftrapp/siftr-server/internal/domain"
	applog "github.com/siftrapp/siftr-server/internal/logger"
)

// SearchIndex wraps a Bleve index with species-level operations.
//
// All public methods are safe for concurrent use. The mutex guards the
// index handle during Rebuild.
type SearchIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Uses discard if nil
}

// mappingVersion is bumped whenever buildIndexMapping changes; a mismatch
// on startup drops and recreates the index.
const mappingVersion = "1"

// batchSize bounds the documents per Bleve batch.
const batchSize = 500

// NewSearchIndex creates or opens a search index under opts.DataPath.
// A corrupted index or one built with an older mapping is removed and
// recreated empty; callers reindex from the store afterwards.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := applog.OrDiscard(opts.Logger)

	indexPath := filepath.Join(opts.DataPath, "search.bleve")
	versionPath := filepath.Join(opts.DataPath, "search.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("search index has no version file, will rebuild",
				"new_version", mappingVersion,
			)
			needsRebuild = true
		case string(existingVersion) != mappingVersion:
			logger.Info("search index mapping version changed, will rebuild",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing index, will recreate",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		if mkErr := os.MkdirAll(opts.DataPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create data dir: %w", mkErr)
		}
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
			logger.Warn("failed to write search version file", "error", writeErr)
		}
		logger.Info("created new search index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing search index", "path", indexPath)
	}

	return &SearchIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexSpecies replaces every document of a dataset with one per species.
// Positions follow the slice order.
func (s *SearchIndex) IndexSpecies(ctx context.Context, datasetID string, species []*domain.Species) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.deleteDatasetLocked(ctx, datasetID); err != nil {
		return err
	}

	for start := 0; start < len(species); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(species))

		batch := s.index.NewBatch()
		for i := start; i < end; i++ {
			doc := SpeciesToDocument(datasetID, i, species[i])
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", start, end, err)
		}
	}

	s.logger.Debug("indexed species", "dataset_id", datasetID, "count", len(species))
	return nil
}

// DeleteDataset removes every document belonging to a dataset.
func (s *SearchIndex) DeleteDataset(ctx context.Context, datasetID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleteDatasetLocked(ctx, datasetID)
}

func (s *SearchIndex) deleteDatasetLocked(ctx context.Context, datasetID string) error {
	ids, err := s.datasetDocumentIDs(ctx, datasetID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("delete dataset %s: %w", datasetID, err)
	}
	return nil
}

// datasetDocumentIDs pages through the documents of one dataset.
func (s *SearchIndex) datasetDocumentIDs(ctx context.Context, datasetID string) ([]string, error) {
	q := bleve.NewTermQuery(datasetID)
	q.SetField("dataset_id")

	var ids []string
	for from := 0; ; from += batchSize {
		req := bleve.NewSearchRequestOptions(q, batchSize, from, false)
		res, err := s.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("list documents of %s: %w", datasetID, err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < batchSize {
			return ids, nil
		}
	}
}

// DocumentCount returns the total number of indexed documents.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops the index and creates an empty one with the current mapping.
// It blocks every other operation until done.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	s.index = index
	s.logger.Info("rebuilt search index", "path", s.path)
	return nil
}

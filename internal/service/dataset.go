package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/siftrapp/siftr-server/internal/collection"
	"github.com/siftrapp/siftr-server/internal/domain"
	domainerrors "github.com/siftrapp/siftr-server/internal/errors"
	"github.com/siftrapp/siftr-server/internal/id"
	"github.com/siftrapp/siftr-server/internal/ingest"
	applog "github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/manifest"
	"github.com/siftrapp/siftr-server/internal/normalize"
	"github.com/siftrapp/siftr-server/internal/sse"
	"github.com/siftrapp/siftr-server/internal/store"
	"github.com/siftrapp/siftr-server/internal/validation"
)

// DefaultImportConcurrency bounds parallel sheet imports in ImportManifest.
const DefaultImportConcurrency = 4

// ImportRequest describes one sheet to load as a dataset.
type ImportRequest struct {
	Slug      string    `json:"slug" validate:"required,slug,max=64"`
	Name      string    `json:"name" validate:"max=200"`
	Format    string    `json:"format" validate:"omitempty,oneof=csv tsv"`
	HeaderRow int       `json:"header_row" validate:"gte=0,lte=100"`
	Source    string    `json:"source,omitempty"`
	Content   io.Reader `json:"-"`
}

// EventEmitter receives dataset change notifications.
type EventEmitter interface {
	Emit(event sse.Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(sse.Event) {}

// ImportResult reports the dataset written by an import.
type ImportResult struct {
	Dataset *domain.Dataset
	Created bool // false when an existing dataset with the same slug was replaced
}

// cachedIndex is a built collection index stamped with the dataset version
// it was built from.
type cachedIndex struct {
	version time.Time
	index   *collection.Index
}

// DatasetService owns dataset lifecycle and per-dataset scoring.
//
// Collection indexes are built lazily from the store and cached per dataset.
// A cache entry is valid only while the dataset's UpdatedAt matches the stamp
// it was built for, so a concurrent re-import can never leave a stale index
// behind.
type DatasetService struct {
	store       store.Store
	normalizer  *normalize.Normalizer
	validator   *validation.Validator
	events      EventEmitter
	logger      *slog.Logger
	concurrency int

	// importMu serializes the lookup-then-write step of imports so two
	// imports of one slug cannot both create it.
	importMu sync.Mutex

	mu      sync.RWMutex
	indexes map[string]cachedIndex
	builds  singleflight.Group
}

// NewDatasetService creates a new dataset service.
func NewDatasetService(store store.Store, validator *validation.Validator, logger *slog.Logger) *DatasetService {
	logger = applog.OrDiscard(logger)
	return &DatasetService{
		store:       store,
		normalizer:  normalize.New(logger),
		validator:   validator,
		events:      noopEmitter{},
		logger:      logger,
		concurrency: DefaultImportConcurrency,
		indexes:     make(map[string]cachedIndex),
	}
}

// SetImportConcurrency changes how many manifest entries load at once.
func (s *DatasetService) SetImportConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// SetEventEmitter routes dataset change events to e.
func (s *DatasetService) SetEventEmitter(e EventEmitter) {
	if e != nil {
		s.events = e
	}
}

// Import reads, normalizes and stores a sheet. A dataset with the same slug
// is replaced in place and keeps its ID.
func (s *DatasetService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.Content == nil {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{"content": "is required"})
	}
	if req.Format == "" {
		req.Format = domain.FormatCSV
	}

	rows, err := ingest.Read(req.Content, ingest.Options{Format: req.Format, HeaderRow: req.HeaderRow})
	if err != nil {
		return nil, domainerrors.InvalidSheet(err)
	}
	res := s.normalizer.Batch(rows)

	s.importMu.Lock()
	defer s.importMu.Unlock()

	ds, err := s.store.GetDatasetBySlug(ctx, req.Slug)
	created := false
	switch {
	case errors.Is(err, store.ErrNotFound):
		datasetID, genErr := id.Generate(id.PrefixDataset)
		if genErr != nil {
			return nil, domainerrors.Wrap(genErr, domainerrors.CodeInternal, "failed to generate dataset id")
		}
		now := time.Now()
		ds = &domain.Dataset{ID: datasetID, Slug: req.Slug, CreatedAt: now, UpdatedAt: now}
		created = true
	case err != nil:
		return nil, mapStoreError(err, req.Slug)
	}

	ds.Name = req.Name
	if ds.Name == "" {
		ds.Name = req.Slug
	}
	ds.Source = req.Source
	ds.Format = req.Format
	ds.HeaderRow = req.HeaderRow
	ds.SpeciesCount = len(res.Species)
	ds.DroppedRows = res.Dropped

	if created {
		if err := s.store.CreateDataset(ctx, ds); err != nil {
			return nil, mapStoreError(err, req.Slug)
		}
	}
	if err := s.store.ReplaceSpecies(ctx, ds.ID, res.Species); err != nil {
		if created {
			s.discard(ctx, ds)
		}
		return nil, fmt.Errorf("replace species of %s: %w", req.Slug, err)
	}
	// Restamp after the species land so an index built from the
	// half-written dataset can never match the cache again.
	ds.Touch()
	if err := s.store.UpdateDataset(ctx, ds); err != nil {
		if created {
			s.discard(ctx, ds)
		}
		return nil, mapStoreError(err, req.Slug)
	}
	s.invalidate(ds.ID)

	s.logger.Info("imported dataset",
		"slug", ds.Slug,
		"id", ds.ID,
		"species", ds.SpeciesCount,
		"dropped", ds.DroppedRows,
		"created", created,
	)
	s.events.Emit(sse.NewDatasetImportedEvent(ds, created))
	return &ImportResult{Dataset: ds, Created: created}, nil
}

// discard removes a dataset whose first import failed part way. It runs
// even when ctx is already canceled.
func (s *DatasetService) discard(ctx context.Context, ds *domain.Dataset) {
	if err := s.store.DeleteDataset(context.WithoutCancel(ctx), ds.ID); err != nil {
		s.logger.Error("failed to discard partial dataset", "slug", ds.Slug, "id", ds.ID, "error", err)
	}
	s.invalidate(ds.ID)
}

// ImportFile imports a manifest entry from disk.
func (s *DatasetService) ImportFile(ctx context.Context, entry manifest.Entry) (*ImportResult, error) {
	f, err := os.Open(entry.Path)
	if err != nil {
		return nil, domainerrors.InvalidSheet(err)
	}
	defer f.Close()

	format := entry.Format
	if format == "" {
		format = ingest.DetectFormat(entry.Path)
	}
	return s.Import(ctx, ImportRequest{
		Slug:      entry.Slug,
		Name:      entry.DisplayName(),
		Format:    format,
		HeaderRow: entry.HeaderRow,
		Source:    entry.Path,
		Content:   f,
	})
}

// ImportManifest loads every manifest entry, a few at a time. Results follow
// manifest order. The first failure cancels the remaining imports.
func (s *DatasetService) ImportManifest(ctx context.Context, m *manifest.Manifest) ([]*ImportResult, error) {
	results := make([]*ImportResult, len(m.Datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, entry := range m.Datasets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.ImportFile(gctx, entry)
			if err != nil {
				return fmt.Errorf("import %s: %w", entry.Slug, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ReloadFile re-imports the manifest entry whose sheet lives at path.
func (s *DatasetService) ReloadFile(ctx context.Context, m *manifest.Manifest, path string) (*ImportResult, error) {
	entry, ok := m.Lookup(path)
	if !ok {
		return nil, domainerrors.NotFoundf("no dataset is configured for %s", path)
	}
	return s.ImportFile(ctx, entry)
}

// List returns every dataset ordered by slug.
func (s *DatasetService) List(ctx context.Context) ([]*domain.Dataset, error) {
	return s.store.ListDatasets(ctx)
}

// Get resolves a dataset by ID or slug.
func (s *DatasetService) Get(ctx context.Context, ref string) (*domain.Dataset, error) {
	return resolveDataset(ctx, s.store, ref)
}

// Delete removes a dataset and its species.
func (s *DatasetService) Delete(ctx context.Context, ref string) error {
	ds, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDataset(ctx, ds.ID); err != nil {
		return mapStoreError(err, ref)
	}
	s.invalidate(ds.ID)

	s.logger.Info("deleted dataset", "slug", ds.Slug, "id", ds.ID)
	s.events.Emit(sse.NewDatasetDeletedEvent(ds))
	return nil
}

// Index returns the collection index for a dataset, building it on first use.
func (s *DatasetService) Index(ctx context.Context, ref string) (*collection.Index, *domain.Dataset, error) {
	ds, err := s.Get(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	cached, ok := s.indexes[ds.ID]
	s.mu.RUnlock()
	if ok && cached.version.Equal(ds.UpdatedAt) {
		return cached.index, ds, nil
	}

	key := fmt.Sprintf("%s@%d", ds.ID, ds.UpdatedAt.UnixNano())
	// Shared by every caller waiting on key, so one canceled request must
	// not fail the rest.
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := s.builds.Do(key, func() (any, error) {
		species, err := s.store.ListSpecies(buildCtx, ds.ID)
		if err != nil {
			return nil, mapStoreError(err, ref)
		}
		ix := collection.New(species)

		s.mu.Lock()
		s.indexes[ds.ID] = cachedIndex{version: ds.UpdatedAt, index: ix}
		s.mu.Unlock()

		s.logger.Debug("built collection index", "dataset", ds.Slug, "species", ix.Len())
		return ix, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return v.(*collection.Index), ds, nil
}

// Attributes returns the attribute universe of a dataset.
func (s *DatasetService) Attributes(ctx context.Context, ref string) (domain.Attributes, error) {
	ix, _, err := s.Index(ctx, ref)
	if err != nil {
		return nil, err
	}
	return ix.Attributes(), nil
}

// Dependencies returns the conditional-visibility rules of a dataset.
func (s *DatasetService) Dependencies(ctx context.Context, ref string) (map[string][]domain.Dependency, error) {
	ix, _, err := s.Index(ctx, ref)
	if err != nil {
		return nil, err
	}
	return ix.Dependencies(), nil
}

// Score ranks a dataset's species against a raw query. Keys and values are
// canonicalized the same way sheet cells are; limit <= 0 returns every
// species.
func (s *DatasetService) Score(ctx context.Context, ref string, raw map[string][]string, limit int) ([]domain.Match, error) {
	ix, _, err := s.Index(ctx, ref)
	if err != nil {
		return nil, err
	}
	return ix.Top(CanonicalQuery(raw), limit), nil
}

// Species returns one species of a dataset by scientific name.
func (s *DatasetService) Species(ctx context.Context, ref, name string) (*domain.Species, error) {
	ds, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	sp, err := s.store.GetSpecies(ctx, ds.ID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFoundf("species %q not found in %s", name, ds.Slug)
		}
		return nil, mapStoreError(err, ref)
	}
	return sp, nil
}

func (s *DatasetService) invalidate(datasetID string) {
	s.mu.Lock()
	delete(s.indexes, datasetID)
	s.mu.Unlock()
}

// CanonicalQuery canonicalizes query keys and values. Keys that collapse to
// the same canonical form are merged; blank values are dropped.
func CanonicalQuery(raw map[string][]string) domain.Query {
	q := make(domain.Query, len(raw))

	// Iterate keys in order so merges are deterministic.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := normalize.Canonicalize(k)
		if key == "" {
			continue
		}
		set, ok := q[key]
		if !ok {
			set = domain.NewValueSet()
			q[key] = set
		}
		for _, v := range raw[k] {
			if c := normalize.CanonicalValue(v); c != "" {
				set.Add(c)
			}
		}
	}
	return q
}

// resolveDataset looks a dataset up by ID first, then by slug.
func resolveDataset(ctx context.Context, st store.Store, ref string) (*domain.Dataset, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domainerrors.Validation("dataset reference is required")
	}

	// Slugs and generated IDs share a namespace, so try whichever the
	// reference looks like first and fall back to the other.
	lookups := []func(context.Context, string) (*domain.Dataset, error){st.GetDatasetBySlug, st.GetDataset}
	if id.Valid(ref, id.PrefixDataset) {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	var err error
	for _, lookup := range lookups {
		var ds *domain.Dataset
		ds, err = lookup(ctx, ref)
		if err == nil {
			return ds, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			break
		}
	}
	return nil, mapStoreError(err, ref)
}

// mapStoreError converts store errors into domain errors.
func mapStoreError(err error, ref string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFoundf("dataset %q not found", ref)
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.AlreadyExistsf("dataset %q already exists", ref)
	case errors.Is(err, store.ErrInvalidInput):
		return domainerrors.Validation(err.Error())
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "storage failure")
	}
}

package kv_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/store"
	"github.com/siftrapp/siftr-server/internal/store/kv"
)

type recordingIndexer struct {
	mu      sync.Mutex
	indexed map[string]int
	deleted []string
}

func (r *recordingIndexer) IndexSpecies(_ context.Context, datasetID string, species []*domain.Species) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexed == nil {
		r.indexed = map[string]int{}
	}
	r.indexed[datasetID] = len(species)
	return nil
}

func (r *recordingIndexer) DeleteDataset(_ context.Context, datasetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, datasetID)
	return nil
}

func makeDataset(id, slug string) *domain.Dataset {
	now := time.Now()
	return &domain.Dataset{ID: id, Slug: slug, Name: slug, Format: domain.FormatCSV, CreatedAt: now, UpdatedAt: now}
}

func makeSpecies(names ...string) []*domain.Species {
	out := make([]*domain.Species, len(names))
	for i, n := range names {
		out[i] = &domain.Species{
			Name:       n,
			Family:     "Pinaceae",
			Attributes: domain.Attributes{"needles": domain.NewValueSet(fmt.Sprint(i + 1))},
		}
	}
	return out
}

func TestDatasets_CRUD(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.CreateDataset(ctx, makeDataset("ds-2", "conifers")))
	require.NoError(t, s.CreateDataset(ctx, makeDataset("ds-1", "broadleaf-trees")))
	require.ErrorIs(t, s.CreateDataset(ctx, makeDataset("ds-3", "conifers")), store.ErrAlreadyExists)
	require.ErrorIs(t, s.CreateDataset(ctx, &domain.Dataset{}), store.ErrInvalidInput)

	got, err := s.GetDatasetBySlug(ctx, "conifers")
	require.NoError(t, err)
	assert.Equal(t, "ds-2", got.ID)

	list, err := s.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "broadleaf-trees", list[0].Slug)

	got.SpeciesCount = 7
	require.NoError(t, s.UpdateDataset(ctx, got))
	got, err = s.GetDataset(ctx, "ds-2")
	require.NoError(t, err)
	assert.Equal(t, 7, got.SpeciesCount)

	_, err = s.GetDataset(ctx, "missing")
	require.ErrorIs(t, err, store.ErrDatasetNotFound)
	_, err = s.GetDatasetBySlug(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.UpdateDataset(ctx, makeDataset("missing", "x")), store.ErrNotFound)
}

func TestSpecies_ReplacePreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	idx := &recordingIndexer{}
	s.SetSearchIndexer(idx)
	require.NoError(t, s.CreateDataset(ctx, makeDataset("ds-1", "conifers")))

	list, err := s.ListSpecies(ctx, "ds-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("Pinus %c", 'z'-i)
	}
	require.NoError(t, s.ReplaceSpecies(ctx, "ds-1", makeSpecies(names...)))

	list, err = s.ListSpecies(ctx, "ds-1")
	require.NoError(t, err)
	require.Len(t, list, len(names))
	for i, sp := range list {
		assert.Equal(t, names[i], sp.Name)
	}
	assert.True(t, list[0].Values("needles").Has("1"))
	assert.Equal(t, 12, idx.indexed["ds-1"])
}

func TestSpecies_ReplaceSwapsGeneration(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	require.NoError(t, s.CreateDataset(ctx, makeDataset("ds-1", "conifers")))

	require.NoError(t, s.ReplaceSpecies(ctx, "ds-1", makeSpecies("Pinus strobus", "Pinus resinosa")))
	require.NoError(t, s.ReplaceSpecies(ctx, "ds-1", makeSpecies("Thuja occidentalis")))

	list, err := s.ListSpecies(ctx, "ds-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Thuja occidentalis", list[0].Name)

	_, err = s.GetSpecies(ctx, "ds-1", "Pinus strobus")
	require.ErrorIs(t, err, store.ErrSpeciesNotFound)

	sp, err := s.GetSpecies(ctx, "ds-1", "Thuja occidentalis")
	require.NoError(t, err)
	assert.Equal(t, "Pinaceae", sp.Family)
}

func TestSpecies_DuplicateNameLookupFindsFirst(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	require.NoError(t, s.CreateDataset(ctx, makeDataset("ds-1", "conifers")))

	species := makeSpecies("Abies balsamea", "Abies balsamea")
	require.NoError(t, s.ReplaceSpecies(ctx, "ds-1", species))

	sp, err := s.GetSpecies(ctx, "ds-1", "Abies balsamea")
	require.NoError(t, err)
	assert.True(t, sp.Values("needles").Has("1"))
}

func TestSpecies_UnknownDataset(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.ErrorIs(t, s.ReplaceSpecies(ctx, "nope", makeSpecies("x")), store.ErrDatasetNotFound)
	_, err := s.ListSpecies(ctx, "nope")
	require.ErrorIs(t, err, store.ErrDatasetNotFound)
	_, err = s.GetSpecies(ctx, "nope", "x")
	require.ErrorIs(t, err, store.ErrSpeciesNotFound)
}

func TestDeleteDataset_CascadesSpecies(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	idx := &recordingIndexer{}
	s.SetSearchIndexer(idx)

	require.NoError(t, s.CreateDataset(ctx, makeDataset("ds-1", "conifers")))
	require.NoError(t, s.ReplaceSpecies(ctx, "ds-1", makeSpecies("Pinus strobus")))
	require.NoError(t, s.DeleteDataset(ctx, "ds-1"))

	_, err := s.GetDataset(ctx, "ds-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"ds-1"}, idx.deleted)

	// Recreating the same ID starts from an empty species list.
	require.NoError(t, s.CreateDataset(ctx, makeDataset("ds-1", "conifers")))
	list, err := s.ListSpecies(ctx, "ds-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.ErrorIs(t, s.DeleteDataset(ctx, "missing"), store.ErrNotFound)
}

func TestOpenInMemory(t *testing.T) {
	s, err := kv.OpenInMemory(nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.CreateDataset(context.Background(), makeDataset("ds-1", "herbs-forbs")))
	assert.NotNil(t, s.DB())
}

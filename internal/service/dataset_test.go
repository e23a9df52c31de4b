package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftrapp/siftr-server/internal/domain"
	domainerrors "github.com/siftrapp/siftr-server/internal/errors"
	"github.com/siftrapp/siftr-server/internal/manifest"
	"github.com/siftrapp/siftr-server/internal/store"
	"github.com/siftrapp/siftr-server/internal/store/kv"
	"github.com/siftrapp/siftr-server/internal/validation"
)

const herbsCSV = `Scientific Name,Common Name,Family,Flower Color,Flower Color2,Leaf Arrangement
Asclepias syriaca,Common milkweed,Milkweed (Asclepiadaceae),pink,purple,opposite
Solidago canadensis,Canada goldenrod,Aster (Asteraceae),yellow,,alternate
Trillium grandiflorum,Large-flowered trillium,Lily (Liliaceae),white,pink,whorled
 ,Unnamed row,,green,,
`

// setupDatasetService creates a service backed by an in-memory Badger store.
func setupDatasetService(t *testing.T) *DatasetService {
	t.Helper()

	st, err := kv.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewDatasetService(st, validation.New(), nil)
}

func importHerbs(t *testing.T, svc *DatasetService) *ImportResult {
	t.Helper()

	res, err := svc.Import(context.Background(), ImportRequest{
		Slug:    "herbs-forbs",
		Name:    "Herbs & Forbs",
		Content: strings.NewReader(herbsCSV),
	})
	require.NoError(t, err)
	return res
}

func loadTestManifest(t *testing.T) *manifest.Manifest {
	t.Helper()

	m, err := manifest.Load(filepath.Join("..", "..", "testdata", "datasets.yaml"))
	require.NoError(t, err)
	return m
}

func matchNames(matches []domain.Match) []string {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Species.Name
	}
	return names
}

func TestDatasetService_Import(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()

	res := importHerbs(t, svc)

	assert.True(t, res.Created)
	assert.True(t, strings.HasPrefix(res.Dataset.ID, "ds-"))
	assert.Equal(t, "herbs-forbs", res.Dataset.Slug)
	assert.Equal(t, domain.FormatCSV, res.Dataset.Format)
	assert.Equal(t, 3, res.Dataset.SpeciesCount)
	assert.Equal(t, 1, res.Dataset.DroppedRows)

	byID, err := svc.Get(ctx, res.Dataset.ID)
	require.NoError(t, err)
	bySlug, err := svc.Get(ctx, "herbs-forbs")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, bySlug.ID)
}

func TestDatasetService_ImportReplacesBySlug(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()

	first := importHerbs(t, svc)

	second, err := svc.Import(ctx, ImportRequest{
		Slug:    "herbs-forbs",
		Content: strings.NewReader("name,Flower Color\nAsclepias tuberosa,orange\n"),
	})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Dataset.ID, second.Dataset.ID)
	assert.Equal(t, 1, second.Dataset.SpeciesCount)
	assert.Equal(t, "herbs-forbs", second.Dataset.Name)

	attrs, err := svc.Attributes(ctx, "herbs-forbs")
	require.NoError(t, err)
	assert.Equal(t, []string{"orange"}, attrs["flower color"].Sorted())

	datasets, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, datasets, 1)
}

func TestDatasetService_ImportErrors(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ImportRequest
		want error
	}{
		{
			name: "missing slug",
			req:  ImportRequest{Content: strings.NewReader(herbsCSV)},
			want: domainerrors.ErrValidation,
		},
		{
			name: "bad slug",
			req:  ImportRequest{Slug: "Herbs Forbs", Content: strings.NewReader(herbsCSV)},
			want: domainerrors.ErrValidation,
		},
		{
			name: "bad format",
			req:  ImportRequest{Slug: "herbs", Format: "xlsx", Content: strings.NewReader(herbsCSV)},
			want: domainerrors.ErrValidation,
		},
		{
			name: "missing content",
			req:  ImportRequest{Slug: "herbs"},
			want: domainerrors.ErrValidation,
		},
		{
			name: "empty sheet",
			req:  ImportRequest{Slug: "herbs", Content: strings.NewReader("")},
			want: domainerrors.ErrInvalidSheet,
		},
		{
			name: "header row past end",
			req:  ImportRequest{Slug: "herbs", HeaderRow: 9, Content: strings.NewReader(herbsCSV)},
			want: domainerrors.ErrInvalidSheet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	datasets, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

var errDiskFull = errors.New("disk full")

// faultyStore wraps a real store and injects failures into species writes.
type faultyStore struct {
	store.Store
	failReplace bool
	// cancel, when set, runs after a successful CreateDataset.
	cancel context.CancelFunc
}

func (f *faultyStore) CreateDataset(ctx context.Context, ds *domain.Dataset) error {
	if err := f.Store.CreateDataset(ctx, ds); err != nil {
		return err
	}
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

func (f *faultyStore) ReplaceSpecies(ctx context.Context, datasetID string, species []*domain.Species) error {
	if f.failReplace {
		return errDiskFull
	}
	return f.Store.ReplaceSpecies(ctx, datasetID, species)
}

func setupFaultyService(t *testing.T) (*DatasetService, *faultyStore) {
	t.Helper()

	st, err := kv.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fs := &faultyStore{Store: st}
	return NewDatasetService(fs, validation.New(), nil), fs
}

func TestDatasetService_ImportFailureLeavesNoDataset(t *testing.T) {
	svc, fs := setupFaultyService(t)
	ctx := context.Background()
	fs.failReplace = true

	_, err := svc.Import(ctx, ImportRequest{Slug: "herbs-forbs", Content: strings.NewReader(herbsCSV)})
	require.ErrorIs(t, err, errDiskFull)

	datasets, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, datasets)

	_, err = svc.Get(ctx, "herbs-forbs")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	// A later successful import starts clean.
	fs.failReplace = false
	res := importHerbs(t, svc)
	assert.True(t, res.Created)

	ix, _, err := svc.Index(ctx, "herbs-forbs")
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())
}

func TestDatasetService_ImportCanceledMidwayLeavesNoDataset(t *testing.T) {
	svc, fs := setupFaultyService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs.cancel = cancel

	_, err := svc.Import(ctx, ImportRequest{Slug: "herbs-forbs", Content: strings.NewReader(herbsCSV)})
	require.ErrorIs(t, err, context.Canceled)

	datasets, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func TestDatasetService_ReimportFailureKeepsPreviousSpecies(t *testing.T) {
	svc, fs := setupFaultyService(t)
	ctx := context.Background()
	first := importHerbs(t, svc)

	fs.failReplace = true
	_, err := svc.Import(ctx, ImportRequest{
		Slug:    "herbs-forbs",
		Content: strings.NewReader("name,Flower Color\nAsclepias tuberosa,orange\n"),
	})
	require.ErrorIs(t, err, errDiskFull)

	ds, err := svc.Get(ctx, "herbs-forbs")
	require.NoError(t, err)
	assert.Equal(t, first.Dataset.ID, ds.ID)
	assert.Equal(t, 3, ds.SpeciesCount)

	ix, _, err := svc.Index(ctx, "herbs-forbs")
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())
}

func TestDatasetService_ImportRestampsDataset(t *testing.T) {
	svc := setupDatasetService(t)
	res := importHerbs(t, svc)

	assert.True(t, res.Dataset.UpdatedAt.After(res.Dataset.CreatedAt))

	stored, err := svc.Get(context.Background(), res.Dataset.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(res.Dataset.UpdatedAt))
}

// blockingStore holds ListSpecies until release is closed, then fails with
// the context's error if it was canceled.
type blockingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListSpecies(ctx context.Context, datasetID string) ([]*domain.Species, error) {
	close(b.entered)
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Store.ListSpecies(ctx, datasetID)
}

func TestDatasetService_IndexBuildSurvivesCallerCancel(t *testing.T) {
	st, err := kv.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	seed := NewDatasetService(st, validation.New(), nil)
	importHerbs(t, seed)

	bs := &blockingStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewDatasetService(bs, validation.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		ix, _, err := svc.Index(ctx, "herbs-forbs")
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{n: ix.Len()}
	}()

	<-bs.entered
	cancel()
	close(bs.release)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, 3, got.n)

	// The build was cached for later callers.
	ix, _, err := svc.Index(context.Background(), "herbs-forbs")
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())
}

func TestDatasetService_Score(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()
	importHerbs(t, svc)

	matches, err := svc.Score(ctx, "herbs-forbs", map[string][]string{
		"Flower Color":      {"Pink"},
		"leaf_arrangement ": {"whorled"},
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Trillium grandiflorum",
		"Asclepias syriaca",
		"Solidago canadensis",
	}, matchNames(matches))
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.InDelta(t, 0.5, matches[1].Score, 1e-9)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-9)

	top, err := svc.Score(ctx, "herbs-forbs", map[string][]string{"flower color": {"pink"}}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Asclepias syriaca", top[0].Species.Name)
}

func TestDatasetService_ScoreEmptyQuery(t *testing.T) {
	svc := setupDatasetService(t)
	importHerbs(t, svc)

	matches, err := svc.Score(context.Background(), "herbs-forbs", nil, 0)
	require.NoError(t, err)

	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.InDelta(t, 1.0, m.Score, 1e-9)
	}
	assert.Equal(t, "Asclepias syriaca", matches[0].Species.Name)
}

func TestDatasetService_IndexCache(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()
	importHerbs(t, svc)

	first, _, err := svc.Index(ctx, "herbs-forbs")
	require.NoError(t, err)
	second, _, err := svc.Index(ctx, "herbs-forbs")
	require.NoError(t, err)
	assert.Same(t, first, second)

	importHerbs(t, svc)

	third, _, err := svc.Index(ctx, "herbs-forbs")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 3, third.Len())
}

func TestDatasetService_Species(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()
	importHerbs(t, svc)

	sp, err := svc.Species(ctx, "herbs-forbs", "Trillium grandiflorum")
	require.NoError(t, err)
	assert.Equal(t, "Large-flowered trillium", sp.DisplayName)
	assert.Equal(t, "Liliaceae", sp.Family)
	assert.Equal(t, []string{"pink", "white"}, sp.Values("flower color").Sorted())

	_, err = svc.Species(ctx, "herbs-forbs", "Quercus alba")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = svc.Species(ctx, "conifers", "Pinus strobus")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDatasetService_Delete(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()
	res := importHerbs(t, svc)

	_, _, err := svc.Index(ctx, "herbs-forbs")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, res.Dataset.ID))

	_, err = svc.Get(ctx, "herbs-forbs")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	err = svc.Delete(ctx, "herbs-forbs")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDatasetService_ImportManifest(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()
	m := loadTestManifest(t)

	results, err := svc.ImportManifest(ctx, m)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, entry := range m.Datasets {
		assert.Equal(t, entry.Slug, results[i].Dataset.Slug)
		assert.Equal(t, entry.Path, results[i].Dataset.Source)
		assert.Positive(t, results[i].Dataset.SpeciesCount)
	}

	datasets, err := svc.List(ctx)
	require.NoError(t, err)
	slugs := make([]string, len(datasets))
	for i, ds := range datasets {
		slugs[i] = ds.Slug
	}
	assert.Equal(t, []string{"broadleaf-shrubs", "broadleaf-trees", "conifers", "herbs-forbs"}, slugs)

	// The conifer sheet has a banner row; its header must still be found.
	matches, err := svc.Score(ctx, "conifers", map[string][]string{"needles per bundle": {"5"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Pinus strobus",
		"Thuja occidentalis", // "unavailable" always matches
		"Pinus resinosa",
	}, matchNames(matches))
}

func TestDatasetService_ReloadFile(t *testing.T) {
	svc := setupDatasetService(t)
	ctx := context.Background()
	m := loadTestManifest(t)

	_, err := svc.ImportManifest(ctx, m)
	require.NoError(t, err)

	before, err := svc.Get(ctx, "conifers")
	require.NoError(t, err)

	res, err := svc.ReloadFile(ctx, m, m.Datasets[3].Path)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, before.ID, res.Dataset.ID)

	_, err = svc.ReloadFile(ctx, m, "/nowhere/else.csv")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestCanonicalQuery(t *testing.T) {
	q := CanonicalQuery(map[string][]string{
		"Leaf_Shape":  {"Orbiculate", " ", "< 3 in"},
		"leaf  shape": {"ovate"},
		"  ":          {"ignored"},
		"Flower Color": nil,
	})

	require.Len(t, q, 2)
	assert.Equal(t, []string{"<3 in", "orbicular", "ovate"}, q["leaf shape"].Sorted())
	assert.Equal(t, 0, q["flower color"].Len())
}

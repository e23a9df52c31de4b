package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/siftrapp/siftr-server/internal/search"
	"github.com/siftrapp/siftr-server/internal/service"
	"github.com/siftrapp/siftr-server/internal/store/kv"
	"github.com/siftrapp/siftr-server/internal/validation"
)

const herbsCSV = `Scientific Name,Common Name,Family,Flower Color,Flower Color2,Leaf Arrangement
Asclepias syriaca,Common milkweed,Milkweed (Asclepiadaceae),pink,purple,opposite
Solidago canadensis,Canada goldenrod,Aster (Asteraceae),yellow,,alternate
Trillium grandiflorum,Large-flowered trillium,Lily (Liliaceae),white,pink,whorled
 ,Unnamed row,,green,,
`

// testEnvelope decodes the success envelope around a typed payload.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// testServer wraps the API server with a humatest client.
type testServer struct {
	*Server
	api humatest.TestAPI
}

// setupTestServer builds the full stack over an in-memory store and a
// temporary search index.
func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	st, err := kv.OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.NewSearchIndex(search.Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	searchSvc := service.NewSearchService(index, st, nil)
	st.SetSearchIndexer(searchSvc)

	services := &Services{
		Datasets: service.NewDatasetService(st, validation.New(), nil),
		Search:   searchSvc,
	}

	srv := NewServer(st, services, opts, nil)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, api: humatest.Wrap(t, srv.API())}
}

// importHerbs uploads the herbs sheet and returns the created dataset.
func (ts *testServer) importHerbs(t *testing.T) DatasetResponse {
	t.Helper()

	resp := ts.api.Post("/api/v1/datasets", map[string]any{
		"slug":    "herbs-forbs",
		"name":    "Herbs & Forbs",
		"content": herbsCSV,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	return decodeData[DatasetResponse](t, resp.Body.Bytes())
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()

	var envelope testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.True(t, envelope.Success, string(body))
	return envelope.Data
}

func decodeError(t *testing.T, body []byte) APIErrorEnvelope {
	t.Helper()

	var envelope APIErrorEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.False(t, envelope.Success, string(body))
	return envelope
}

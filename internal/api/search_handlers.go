package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/siftrapp/siftr-server/internal/errors"
	"github.com/siftrapp/siftr-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search species",
		Description: "Free-text search over names, families, descriptions and facts across datasets",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// === DTOs ===

// SearchInput contains search parameters.
type SearchInput struct {
	Query     string `query:"q" maxLength:"200" doc:"Search text; empty lists every species in scope"`
	Dataset   string `query:"dataset" doc:"Restrict to one dataset (ID or slug)"`
	Limit     int    `query:"limit" minimum:"0" maximum:"100" doc:"Max results (default 20)"`
	Offset    int    `query:"offset" minimum:"0" doc:"Pagination offset"`
	Highlight bool   `query:"highlight" doc:"Include highlighted fragments"`
}

// SearchHitResult is a single matching species.
type SearchHitResult struct {
	DatasetID  string            `json:"dataset_id" doc:"Dataset the species belongs to"`
	Name       string            `json:"name" doc:"Scientific name"`
	CommonName string            `json:"common_name,omitempty" doc:"Common name"`
	Family     string            `json:"family,omitempty" doc:"Plant family"`
	Score      float64           `json:"score" doc:"Search relevance score"`
	Highlights map[string]string `json:"highlights,omitempty" doc:"Highlighted matches"`
}

// SearchResponse contains one page of search results.
type SearchResponse struct {
	Query  string            `json:"query" doc:"Original search query"`
	Total  uint64            `json:"total" doc:"Total matches"`
	TookMs int64             `json:"took_ms" doc:"Search duration in milliseconds"`
	Hits   []SearchHitResult `json:"hits" doc:"Search results"`
}

// SearchOutput wraps the search response for Huma.
type SearchOutput struct {
	Body SearchResponse
}

// === Handlers ===

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if s.services.Search == nil {
		return nil, apiError(domainerrors.Unavailable("search is not enabled"))
	}

	result, err := s.services.Search.Search(ctx, search.Params{
		Query:     input.Query,
		DatasetID: input.Dataset,
		Limit:     input.Limit,
		Offset:    input.Offset,
		Highlight: input.Highlight,
	})
	if err != nil {
		s.logger.Error("search failed", "error", err, "query", input.Query)
		return nil, apiError(err)
	}

	s.logger.Debug("search completed",
		"query", input.Query,
		"total", result.Total,
		"took_ms", result.TookMs,
	)

	resp := SearchResponse{
		Query:  result.Query,
		Total:  result.Total,
		TookMs: result.TookMs,
		Hits:   make([]SearchHitResult, len(result.Hits)),
	}
	for i, hit := range result.Hits {
		resp.Hits[i] = SearchHitResult{
			DatasetID:  hit.DatasetID,
			Name:       hit.Name,
			CommonName: hit.CommonName,
			Family:     hit.Family,
			Score:      hit.Score,
			Highlights: hit.Highlights,
		}
	}
	return &SearchOutput{Body: resp}, nil
}

package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultLimit is used when Params.Limit is zero or negative.
const DefaultLimit = 20

// Params configures a search query.
type Params struct {
	Query     string // Free text, e.g. "fragrant wetland"
	DatasetID string // Restrict to one dataset (empty = all)
	Limit     int
	Offset    int
	Highlight bool
}

// Result holds one page of search hits.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is a single matching species.
type Hit struct {
	DatasetID  string            `json:"dataset_id"`
	Position   int               `json:"position"`
	Name       string            `json:"name"`
	CommonName string            `json:"common_name,omitempty"`
	Family     string            `json:"family,omitempty"`
	Score      float64           `json:"score"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Search executes a query. An empty query text matches every document in
// scope, ordered by dataset and position.
func (s *SearchIndex) Search(ctx context.Context, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := max(params.Offset, 0)

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), limit, offset, false)
	if strings.TrimSpace(params.Query) == "" {
		req.SortBy([]string{"dataset_id", "position"})
	} else {
		req.SortBy([]string{"-_score", "dataset_id", "position"})
	}
	if params.Highlight {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("name")
		req.Highlight.AddField("common_name")
	}
	req.Fields = []string{"dataset_id", "position", "name", "common_name", "family"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		if v, ok := h.Fields["dataset_id"].(string); ok {
			hit.DatasetID = v
		}
		if v, ok := h.Fields["position"].(float64); ok {
			hit.Position = int(v)
		}
		if v, ok := h.Fields["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := h.Fields["common_name"].(string); ok {
			hit.CommonName = v
		}
		if v, ok := h.Fields["family"].(string); ok {
			hit.Family = v
		}
		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(h.Fragments))
			for field, fragments := range h.Fragments {
				if len(fragments) > 0 {
					hit.Highlights[field] = fragments[0]
				}
			}
		}
		result.Hits = append(result.Hits, hit)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
//
// Names carry the highest boost, then descriptive text. Fuzzy matching on
// the common name absorbs small typos ("dogwod").
func buildSearchQuery(params Params) query.Query {
	var queries []query.Query

	text := strings.TrimSpace(params.Query)
	if text != "" {
		fields := []struct {
			name  string
			boost float64
		}{
			{"name", 3.0},
			{"common_name", 3.0},
			{"family", 2.0},
			{"description", 1.0},
			{"tabs", 1.0},
			{"facts", 0.8},
		}

		textQueries := make([]query.Query, 0, len(fields)+1)
		for _, f := range fields {
			mq := bleve.NewMatchQuery(text)
			mq.SetField(f.name)
			mq.SetBoost(f.boost)
			textQueries = append(textQueries, mq)
		}

		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("common_name")
		fuzzy.SetBoost(0.5)
		textQueries = append(textQueries, fuzzy)

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.DatasetID != "" {
		dq := bleve.NewTermQuery(params.DatasetID)
		dq.SetField("dataset_id")
		queries = append(queries, dq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

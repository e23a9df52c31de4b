package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/siftrapp/siftr-server/internal/domain"
)

func (s *Server) registerQueryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getAttributes",
		Method:      http.MethodGet,
		Path:        "/api/v1/datasets/{ref}/attributes",
		Summary:     "Attribute universe",
		Description: "Every attribute key of a dataset with the values seen for it, plus conditional-visibility rules",
		Tags:        []string{"Identify"},
	}, s.handleGetAttributes)

	huma.Register(s.api, huma.Operation{
		OperationID: "scoreSpecies",
		Method:      http.MethodPost,
		Path:        "/api/v1/datasets/{ref}/score",
		Summary:     "Score species",
		Description: "Ranks species by the fraction of constrained attributes they match, best first",
		Tags:        []string{"Identify"},
	}, s.handleScore)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSpecies",
		Method:      http.MethodGet,
		Path:        "/api/v1/datasets/{ref}/species/{name}",
		Summary:     "Get species",
		Description: "Returns one species by scientific name",
		Tags:        []string{"Identify"},
	}, s.handleGetSpecies)
}

// === DTOs ===

// AttributesResponse lists a dataset's attribute universe.
type AttributesResponse struct {
	Dataset      string                         `json:"dataset" doc:"Dataset slug"`
	Attributes   map[string][]string            `json:"attributes" doc:"Attribute key to its sorted values"`
	Dependencies map[string][]domain.Dependency `json:"dependencies,omitempty" doc:"Conditional-visibility rules keyed by attribute"`
}

// AttributesOutput wraps the attribute universe.
type AttributesOutput struct {
	Body AttributesResponse
}

// ScoreRequest is a partial description of an unknown plant.
type ScoreRequest struct {
	Where map[string][]string `json:"where,omitempty" doc:"Attribute key to accepted values; keys and values are canonicalized like sheet cells"`
	Limit int                 `json:"limit,omitempty" minimum:"0" maximum:"1000" doc:"Maximum matches to return (0 = all)"`
}

// ScoreInput wraps a score request.
type ScoreInput struct {
	Ref  string `path:"ref" doc:"Dataset ID or slug"`
	Body ScoreRequest
}

// ScoredSpecies is one ranked match.
type ScoredSpecies struct {
	Name        string  `json:"name" doc:"Scientific name"`
	DisplayName string  `json:"display_name,omitempty" doc:"Common name"`
	Family      string  `json:"family,omitempty" doc:"Plant family"`
	Score       float64 `json:"score" doc:"Fraction of constrained attributes matched, 0 to 1"`
}

// ScoreResponse holds ranked matches.
type ScoreResponse struct {
	Dataset string          `json:"dataset" doc:"Dataset slug"`
	Matches []ScoredSpecies `json:"matches" doc:"Species ordered by descending score"`
}

// ScoreOutput wraps the ranking.
type ScoreOutput struct {
	Body ScoreResponse
}

// SpeciesInput identifies one species.
type SpeciesInput struct {
	Ref  string `path:"ref" doc:"Dataset ID or slug"`
	Name string `path:"name" doc:"Scientific name"`
}

// SpeciesResponse is a full species record.
type SpeciesResponse struct {
	Name        string              `json:"name" doc:"Scientific name"`
	DisplayName string              `json:"display_name,omitempty" doc:"Common name"`
	Family      string              `json:"family,omitempty" doc:"Plant family"`
	Description string              `json:"description,omitempty" doc:"Description text"`
	Attributes  map[string][]string `json:"attributes" doc:"Attribute key to sorted values"`
	Tabs        map[string]string   `json:"tabs,omitempty" doc:"Extra description sections"`
	Facts       map[string]string   `json:"facts,omitempty" doc:"Free-form facts"`
}

// SpeciesOutput wraps a species.
type SpeciesOutput struct {
	Body SpeciesResponse
}

// === Handlers ===

func (s *Server) handleGetAttributes(ctx context.Context, input *DatasetRefInput) (*AttributesOutput, error) {
	ix, ds, err := s.services.Datasets.Index(ctx, input.Ref)
	if err != nil {
		return nil, apiError(err)
	}

	return &AttributesOutput{
		Body: AttributesResponse{
			Dataset:      ds.Slug,
			Attributes:   sortedAttributes(ix.Attributes()),
			Dependencies: ix.Dependencies(),
		},
	}, nil
}

func (s *Server) handleScore(ctx context.Context, input *ScoreInput) (*ScoreOutput, error) {
	ds, err := s.services.Datasets.Get(ctx, input.Ref)
	if err != nil {
		return nil, apiError(err)
	}

	matches, err := s.services.Datasets.Score(ctx, ds.ID, input.Body.Where, input.Body.Limit)
	if err != nil {
		return nil, apiError(err)
	}

	resp := ScoreResponse{Dataset: ds.Slug, Matches: make([]ScoredSpecies, len(matches))}
	for i, m := range matches {
		resp.Matches[i] = ScoredSpecies{
			Name:        m.Species.Name,
			DisplayName: m.Species.DisplayName,
			Family:      m.Species.Family,
			Score:       m.Score,
		}
	}
	return &ScoreOutput{Body: resp}, nil
}

func (s *Server) handleGetSpecies(ctx context.Context, input *SpeciesInput) (*SpeciesOutput, error) {
	sp, err := s.services.Datasets.Species(ctx, input.Ref, input.Name)
	if err != nil {
		return nil, apiError(err)
	}

	return &SpeciesOutput{
		Body: SpeciesResponse{
			Name:        sp.Name,
			DisplayName: sp.DisplayName,
			Family:      sp.Family,
			Description: sp.Description,
			Attributes:  sortedAttributes(sp.Attributes),
			Tabs:        sp.Tabs,
			Facts:       sp.Facts,
		},
	}, nil
}

func sortedAttributes(attrs domain.Attributes) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		out[k] = v.Sorted()
	}
	return out
}

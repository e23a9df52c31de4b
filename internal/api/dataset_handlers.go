package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/service"
)

func (s *Server) registerDatasetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listDatasets",
		Method:      http.MethodGet,
		Path:        "/api/v1/datasets",
		Summary:     "List datasets",
		Description: "Returns every loaded dataset ordered by slug",
		Tags:        []string{"Datasets"},
	}, s.handleListDatasets)

	huma.Register(s.api, huma.Operation{
		OperationID:  "importDataset",
		Method:       http.MethodPost,
		Path:         "/api/v1/datasets",
		Summary:      "Import dataset",
		Description:  "Loads a CSV or TSV sheet as a dataset. Importing an existing slug replaces its species.",
		Tags:         []string{"Datasets"},
		MaxBodyBytes: s.opts.MaxUploadBytes,
		Middlewares:  huma.Middlewares{s.rateLimitImports},
	}, s.handleImportDataset)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDataset",
		Method:      http.MethodGet,
		Path:        "/api/v1/datasets/{ref}",
		Summary:     "Get dataset",
		Description: "Returns a dataset by ID or slug",
		Tags:        []string{"Datasets"},
	}, s.handleGetDataset)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteDataset",
		Method:        http.MethodDelete,
		Path:          "/api/v1/datasets/{ref}",
		Summary:       "Delete dataset",
		Description:   "Removes a dataset and all of its species",
		Tags:          []string{"Datasets"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteDataset)
}

// === DTOs ===

// DatasetRefInput identifies a dataset by ID or slug.
type DatasetRefInput struct {
	Ref string `path:"ref" doc:"Dataset ID or slug"`
}

// DatasetResponse describes a loaded dataset.
type DatasetResponse struct {
	ID           string    `json:"id" doc:"Dataset ID"`
	Slug         string    `json:"slug" doc:"URL-safe key"`
	Name         string    `json:"name" doc:"Display name"`
	Source       string    `json:"source,omitempty" doc:"File the dataset was loaded from"`
	Format       string    `json:"format" doc:"Sheet format: csv or tsv"`
	HeaderRow    int       `json:"header_row" doc:"Banner rows skipped before the header"`
	SpeciesCount int       `json:"species_count" doc:"Species loaded"`
	DroppedRows  int       `json:"dropped_rows" doc:"Rows rejected for lacking a scientific name"`
	CreatedAt    time.Time `json:"created_at" doc:"First import time"`
	UpdatedAt    time.Time `json:"updated_at" doc:"Last import time"`
}

// DatasetOutput wraps a single dataset.
type DatasetOutput struct {
	Body DatasetResponse
}

// ListDatasetsResponse contains every dataset.
type ListDatasetsResponse struct {
	Datasets []DatasetResponse `json:"datasets" doc:"Loaded datasets"`
}

// ListDatasetsOutput wraps the dataset list.
type ListDatasetsOutput struct {
	Body ListDatasetsResponse
}

// ImportDatasetRequest is the body of an import.
type ImportDatasetRequest struct {
	Slug      string `json:"slug" minLength:"1" maxLength:"64" doc:"URL-safe key, e.g. herbs-forbs"`
	Name      string `json:"name,omitempty" maxLength:"200" doc:"Display name (defaults to the slug)"`
	Format    string `json:"format,omitempty" enum:"csv,tsv" doc:"Sheet format (default csv)"`
	HeaderRow int    `json:"header_row,omitempty" minimum:"0" maximum:"100" doc:"Banner rows to skip before the header"`
	Content   string `json:"content" minLength:"1" doc:"Raw sheet text"`
}

// ImportDatasetInput wraps the import body.
type ImportDatasetInput struct {
	Body ImportDatasetRequest
}

// ImportDatasetOutput reports the imported dataset. Status is 201 for a new
// slug and 200 when an existing dataset was replaced.
type ImportDatasetOutput struct {
	Status int
	Body   DatasetResponse
}

// === Handlers ===

func (s *Server) handleListDatasets(ctx context.Context, _ *struct{}) (*ListDatasetsOutput, error) {
	list, err := s.services.Datasets.List(ctx)
	if err != nil {
		return nil, apiError(err)
	}

	resp := ListDatasetsResponse{Datasets: make([]DatasetResponse, len(list))}
	for i, ds := range list {
		resp.Datasets[i] = toDatasetResponse(ds)
	}
	return &ListDatasetsOutput{Body: resp}, nil
}

func (s *Server) handleImportDataset(ctx context.Context, input *ImportDatasetInput) (*ImportDatasetOutput, error) {
	result, err := s.services.Datasets.Import(ctx, service.ImportRequest{
		Slug:      input.Body.Slug,
		Name:      input.Body.Name,
		Format:    input.Body.Format,
		HeaderRow: input.Body.HeaderRow,
		Source:    "upload",
		Content:   strings.NewReader(input.Body.Content),
	})
	if err != nil {
		return nil, apiError(err)
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return &ImportDatasetOutput{Status: status, Body: toDatasetResponse(result.Dataset)}, nil
}

func (s *Server) handleGetDataset(ctx context.Context, input *DatasetRefInput) (*DatasetOutput, error) {
	ds, err := s.services.Datasets.Get(ctx, input.Ref)
	if err != nil {
		return nil, apiError(err)
	}
	return &DatasetOutput{Body: toDatasetResponse(ds)}, nil
}

func (s *Server) handleDeleteDataset(ctx context.Context, input *DatasetRefInput) (*struct{}, error) {
	if err := s.services.Datasets.Delete(ctx, input.Ref); err != nil {
		return nil, apiError(err)
	}
	return nil, nil
}

func toDatasetResponse(ds *domain.Dataset) DatasetResponse {
	return DatasetResponse{
		ID:           ds.ID,
		Slug:         ds.Slug,
		Name:         ds.Name,
		Source:       ds.Source,
		Format:       ds.Format,
		HeaderRow:    ds.HeaderRow,
		SpeciesCount: ds.SpeciesCount,
		DroppedRows:  ds.DroppedRows,
		CreatedAt:    ds.CreatedAt,
		UpdatedAt:    ds.UpdatedAt,
	}
}

package api

import (
	"github.com/siftrapp/siftr-server/internal/service"
	"github.com/siftrapp/siftr-server/internal/sse"
)

// Services groups the business logic services used by the API server.
type Services struct {
	Datasets *service.DatasetService
	Search   *service.SearchService // Optional; search routes report 503 without it
	Events   *sse.Handler           // Optional; mounted at /api/v1/events
}

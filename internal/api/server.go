// Package api provides the HTTP API for Siftr: dataset management, species
// scoring against partial observations, and free-text search.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	applog "github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/ratelimit"
	"github.com/siftrapp/siftr-server/internal/store"
)

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins         []string
	ImportRatePerMinute int   // Uploads per client IP per minute; 0 disables limiting
	MaxUploadBytes      int64 // Largest accepted import body; 0 uses huma's default
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store         store.Store
	services      *Services
	router        *chi.Mux
	api           huma.API
	logger        *slog.Logger
	opts          Options
	importLimiter *ratelimit.KeyedRateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st store.Store, services *Services, opts Options, logger *slog.Logger) *Server {
	logger = applog.OrDiscard(logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	humaConfig := huma.DefaultConfig("Siftr API", "1.0.0")
	humaConfig.Info.Description = "Narrow down a plant species from partial observations."
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:    st,
		services: services,
		router:   router,
		api:      api,
		logger:   logger,
		opts:     opts,
	}
	if opts.ImportRatePerMinute > 0 {
		s.importLimiter = ratelimit.New(
			ratelimit.PerInterval(opts.ImportRatePerMinute, time.Minute),
			opts.ImportRatePerMinute,
		)
	}

	s.registerHealthRoutes()
	s.registerDatasetRoutes()
	s.registerQueryRoutes()
	s.registerSearchRoutes()

	// Event streams bypass huma: they are long-lived and not JSON.
	if services.Events != nil {
		s.router.Get("/api/v1/events", services.Events.ServeHTTP)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.importLimiter != nil {
		s.importLimiter.Stop()
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

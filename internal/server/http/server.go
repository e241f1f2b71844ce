// Package httpserver provides the HTTP REST API server for the citation network service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-network-service/internal/cache"
	"github.com/helixir/citation-network-service/internal/database"
	"github.com/helixir/citation-network-service/internal/discovery"
	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/network"
	"github.com/helixir/citation-network-service/internal/ranking"
	"github.com/helixir/citation-network-service/internal/repository"
)

// ArticleResolver hydrates article identifiers.
type ArticleResolver interface {
	Resolve(ctx context.Context, ids []string) []domain.ArticleRecord
}

// RelatedFinder looks up the neighborhood of one paper.
type RelatedFinder interface {
	FindRelated(ctx context.Context, sourceID string, relation domain.RelationType, limit int) discovery.Result
}

// NetworkBuilder assembles citation networks.
type NetworkBuilder interface {
	Build(ctx context.Context, req network.BuildRequest) (domain.NetworkGraph, network.ValidationResult, error)
}

// CacheAdmin is the administrative surface of one lookup cache.
type CacheAdmin interface {
	Name() string
	Stats() cache.Stats
	InvalidateByPattern(re *regexp.Regexp) int
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Dependencies are the collaborators the handlers call. Collections, Ranker
// and DB may be nil; the routes that need them answer 503.
type Dependencies struct {
	Resolver    ArticleResolver
	Finder      RelatedFinder
	Builder     NetworkBuilder
	Ranker      network.Ranker
	Caches      []CacheAdmin
	Collections repository.CollectionRepository
	DB          HealthChecker
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Dependencies
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		deps:     deps,
		validate: ranking.NewValidator(),
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)
	r.Use(accessLogMiddleware(s))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/articles", s.getArticles)
		r.Get("/articles/{articleID}/related", s.getRelated)

		r.Post("/networks", s.buildNetwork)
		r.Post("/rankings", s.rankCandidates)

		r.Get("/cache/stats", s.getCacheStats)
		r.Delete("/cache", s.invalidateCache)

		r.Route("/collections", func(r chi.Router) {
			r.Use(s.requireCollections)
			r.Post("/", s.createCollection)
			r.Get("/", s.listCollections)
			r.Get("/{collectionID}", s.getCollection)
			r.Delete("/{collectionID}", s.deleteCollection)
			r.Get("/{collectionID}/articles", s.listCollectionArticles)
			r.Post("/{collectionID}/articles", s.addCollectionArticles)
			r.Delete("/{collectionID}/articles/{articleID}", s.removeCollectionArticle)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status. The database is reported but
// never fails liveness, since the lookup endpoints work without it.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.deps.DB != nil {
		resp["database"] = s.deps.DB.Health(r.Context()).Status
	}
	writeJSON(w, http.StatusOK, resp)
}

// readinessHandler returns readiness status including database connectivity.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "database": "disabled"})
		return
	}
	health := s.deps.DB.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

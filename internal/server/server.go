// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scanvault/docpipe/internal/batch"
	"github.com/scanvault/docpipe/internal/quota"
	"github.com/scanvault/docpipe/internal/repository"
)

// Server wraps the HTTP listener and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Deps wires the handlers' collaborators.
type Deps struct {
	Orchestrator *batch.Orchestrator
	Registry     *batch.Registry
	Batches      repository.BatchRepository
	Documents    repository.DocumentRepository
	Gate         quota.Gate
	TenantID     string
	// AllowedOrigins configures CORS; empty allows any origin.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// New builds and wires all routes.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handler{deps: deps, log: deps.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute)) // ingestion runs are slow

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.health)

	r.Route("/api", func(api chi.Router) {
		api.Post("/batches", h.createBatch)
		api.Get("/batches/{batchID}", h.getBatch)
		api.Get("/batches/{batchID}/documents", h.listDocuments)
		api.Post("/batches/{batchID}/ingest", h.ingest)
		api.Get("/quota", h.quotaStatus)
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		logger:     deps.Logger,
	}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

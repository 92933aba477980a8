package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cooperative-finance/kestrel/internal/alerts"
	"github.com/cooperative-finance/kestrel/internal/domain"
	"github.com/cooperative-finance/kestrel/internal/ingest"
	"github.com/cooperative-finance/kestrel/internal/rules"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, custom *rules.CustomEngine, ledger *alerts.Ledger, fetcher *ingest.Client, version string, snapshotTTL time.Duration) *Server {
	handler := NewHandler(repo, cache, bus, engine, custom, ledger, fetcher, version, snapshotTTL)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for the review dashboard
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no society required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (society required)
	router.Route("/", func(r chi.Router) {
		r.Use(SocietyMiddleware)

		// Snapshot evaluation
		r.Post("/evaluate", handler.Evaluate)

		// Run retrieval
		r.Get("/runs/{id}", handler.GetRun)

		// Alert review
		r.Get("/alerts", handler.ListAlerts)
		r.Get("/alerts/{seq}", handler.GetAlert)
		r.Post("/alerts/{seq}/resolve", handler.ResolveAlert)

		// Custom rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

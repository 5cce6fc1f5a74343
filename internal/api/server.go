// Package api provides the HTTP surface for the consolidation engine:
// ingest, certificate lifecycle, job triggers, consolidated-landing queries,
// reference-data management, and alert-rule management.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-fisheries/gannet/internal/consolidate"
	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
	"github.com/opensource-fisheries/gannet/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *consolidate.Engine, alerts *rules.Engine, ref *refdata.Cache, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, alerts, ref, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Ingest
	router.Post("/landings", handler.IngestLanding)
	router.Post("/certificates", handler.SubmitCertificate)
	router.Post("/certificates/{number}/void", handler.VoidCertificate)
	router.Post("/pre-approvals", handler.PreApprove)

	// Jobs
	router.Post("/jobs/consolidate", handler.RunConsolidation)
	router.Post("/jobs/retrospective", handler.RunRetrospective)
	router.Get("/retrospective", handler.GetRetrospective)

	// Consolidated landings
	router.Get("/consolidated", handler.ListConsolidated)
	router.Delete("/consolidated", handler.DeleteConsolidatedRange)
	router.Get("/consolidated/{pln}/{date}", handler.GetConsolidated)

	// Reference data
	router.Route("/refdata", func(r chi.Router) {
		r.Post("/refresh", handler.RefreshRefData)
		r.Post("/purge", handler.PurgeRefData)
		r.Post("/vessels", handler.SaveVessel)
		r.Post("/vessels-of-interest", handler.SaveVesselOfInterest)
		r.Put("/weighting", handler.SaveWeighting)
		r.Post("/species-aliases", handler.SaveSpeciesAlias)
		r.Post("/conversion-factors", handler.SaveConversionFactor)
		r.Post("/exporter-behaviour", handler.SaveExporterBehaviour)
	})

	// Alert rule management
	router.Get("/rules", handler.ListRules)
	router.Get("/rules/{id}", handler.GetRule)
	router.Post("/rules", handler.CreateRule)
	router.Post("/rules/reload", handler.ReloadRules)

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

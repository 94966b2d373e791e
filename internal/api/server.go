package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/history"
	"github.com/opensource-commerce/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, registry *rules.Registry, hist *history.Service, baseCfg domain.AttributionConfig, dashCfg domain.DashboardConfig, version string) *Server {
	handler := NewHandler(repo, cache, bus, registry, hist, baseCfg, dashCfg, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no shop required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (shop required)
	router.Route("/", func(r chi.Router) {
		r.Use(ShopMiddleware)

		// Order ingestion and retrieval
		r.Post("/orders", handler.IngestOrder)
		r.Get("/orders/{id}", handler.GetOrder)

		// Dry-run classification
		r.Post("/classify", handler.Classify)

		// Dashboard aggregation and CSV export
		r.Get("/dashboard", handler.Dashboard)
		r.Get("/dashboard/export/{table}", handler.ExportDashboard)

		// Rule management
		r.Get("/rules/domains", handler.ListDomainRules)
		r.Post("/rules/domains", handler.CreateDomainRule)
		r.Delete("/rules/domains/{domain}", handler.DeleteDomainRule)

		r.Get("/rules/utm", handler.ListUTMRules)
		r.Post("/rules/utm", handler.CreateUTMRule)
		r.Delete("/rules/utm/{value}", handler.DeleteUTMRule)

		r.Get("/rules/custom", handler.ListCustomRules)
		r.Get("/rules/custom/{id}", handler.GetCustomRule)
		r.Post("/rules/custom", handler.CreateCustomRule)
		r.Delete("/rules/custom/{id}", handler.DeleteCustomRule)
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

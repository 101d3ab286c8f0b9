package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/csm-sentinel/api/middleware"
)

// Status is a snapshot of block processing progress for the health endpoint.
type Status struct {
	Checkpoint uint64 `json:"checkpoint"`
	Head       uint64 `json:"head"`
}

// StatusFunc supplies the current processing status
type StatusFunc func() Status

// Server exposes the operational endpoints: health, readiness, and metrics
type Server struct {
	config *Config
	logger *zap.Logger
	status StatusFunc
	router *chi.Mux
	server *http.Server
	ready  atomic.Bool
}

// NewServer creates a new ops server
func NewServer(config *Config, logger *zap.Logger, status StatusFunc) (*Server, error) {
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config: config,
		logger: logger,
		status: status,
		router: chi.NewRouter(),
	}

	// Setup middleware
	s.setupMiddleware()

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	s.server = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

// SetReady flips the readiness probe. The main process marks the server
// ready once the bot is polling and the subscription engine is connected.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))

	// Request ID middleware
	s.router.Use(middleware.RequestID)

	// Real IP middleware
	s.router.Use(middleware.RealIP)

	// Logger middleware
	s.router.Use(apimiddleware.RequestLogger(s.logger))

	// Recoverer middleware (chi's built-in)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures the ops routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.Get("/healthz", s.handleHealth)

	// Readiness endpoint
	s.router.Get("/readyz", s.handleReady)

	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Version endpoint
	s.router.Get("/version", s.handleVersion)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Blocks    *Status `json:"blocks,omitempty"`
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if s.status != nil {
		blocks := s.status()
		response.Blocks = &blocks
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleReady handles the readiness endpoint
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"version":"1.0.0","name":"csm-sentinel"}`)
}

// Start starts the ops server
func (s *Server) Start() error {
	s.logger.Info("starting ops server",
		zap.String("address", s.config.Address()),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the ops server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping ops server")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	// Shutdown server
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("ops server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}

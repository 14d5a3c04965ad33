// internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	handler "github.com/newthinker/macross/internal/api/handler/api"
	"github.com/newthinker/macross/internal/api/job"
	"github.com/newthinker/macross/internal/api/middleware"
	"github.com/newthinker/macross/internal/api/response"
	"github.com/newthinker/macross/internal/app"
	"github.com/newthinker/macross/internal/metrics"
	"go.uber.org/zap"
)

// Server represents the HTTP server for macross
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	handler    http.Handler
	jobs       *job.Store
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string // empty disables the metrics endpoint
	MaxJobs     int
	JobTTL      time.Duration
}

// Dependencies holds what the routes serve
type Dependencies struct {
	App *app.App
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.App == nil {
		return nil, errors.New("app is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	jobs := job.NewStore(cfg.MaxJobs, cfg.JobTTL)
	reg := deps.App.Metrics()
	jobs.OnActive(reg.SetJobsActive)

	s := &Server{
		logger: logger,
		mux:    mux,
		jobs:   jobs,
	}
	s.setupRoutes(cfg, deps, reg)

	// Logging wraps metrics so the mux's route pattern is visible to both
	s.handler = metrics.LoggingMiddleware(logger)(metrics.HTTPMiddleware(reg)(mux))

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies, reg *metrics.Registry) {
	auth := middleware.APIKeyAuth(cfg.APIKey)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	backtests := handler.NewBacktestHandler(s.jobs, deps.App, deps.App.Strategies(), s.logger)
	runs := handler.NewRunsHandler(deps.App)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.Handle("GET /api/v1/strategies", protect(func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]any{"strategies": deps.App.Strategies().Names()})
	}))
	s.mux.Handle("POST /api/v1/backtests", protect(backtests.Create))
	s.mux.Handle("GET /api/v1/backtests/{id}", protect(backtests.GetStatus))
	s.mux.Handle("GET /api/v1/runs", protect(runs.List))
	s.mux.Handle("GET /api/v1/runs/{id}", protect(runs.Get))
	s.mux.Handle("GET /api/v1/runs/{id}/report", protect(runs.Report))

	if cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, reg.Handler())
	}
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

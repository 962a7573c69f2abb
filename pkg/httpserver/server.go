package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/orderbook"
	"github.com/mselser95/mercury/pkg/healthprobe"
	"github.com/mselser95/mercury/pkg/types"
)

// PositionLister is the read-only subset of internal/statestore.Store the
// positions endpoint needs.
type PositionLister interface {
	OpenPositions(ctx context.Context) ([]*types.Position, error)
}

// Server provides HTTP endpoints for metrics, health checks, and read-only
// inspection of order books and open positions.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration. Books, Positions, and Executor are
// optional: when nil, the corresponding /api/* route is not registered.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Books         *orderbook.Store
	Positions     PositionLister
	Executor      SignalCanceller
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	if cfg.Books != nil {
		obHandler := NewOrderbookHandler(cfg.Books, cfg.Logger)
		r.Get("/api/orderbook", obHandler.HandleOrderbook)
	}
	if cfg.Positions != nil {
		posHandler := NewPositionsHandler(cfg.Positions, cfg.Logger)
		r.Get("/api/positions", posHandler.HandlePositions)
	}
	if cfg.Executor != nil {
		sigHandler := NewSignalsHandler(cfg.Executor, cfg.Logger)
		r.Delete("/api/signals/{signal_id}", sigHandler.HandleCancel)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}

// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handler "github.com/newthinker/foresight/internal/api/handler/api"
	"github.com/newthinker/foresight/internal/api/middleware"
	"github.com/newthinker/foresight/internal/api/response"
	"github.com/newthinker/foresight/internal/forecast"
	"github.com/newthinker/foresight/internal/metrics"
)

// Server represents the HTTP server for the forecasting API
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	deps       Dependencies
	started    time.Time
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	APIKey         string
	RequestTimeout time.Duration
	MetricsPath    string // empty disables the metrics endpoint
}

// Dependencies are the components behind the routes.
type Dependencies struct {
	Forecaster    *forecast.Service
	Metrics       *metrics.Registry    // optional
	Warmup        handler.WarmupRunner // optional; enables POST /cache/warmup
	WarmupSymbols []string
	BaseCtx       context.Context // parent of background work started by handlers
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Forecaster == nil {
		return nil, fmt.Errorf("forecaster is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		logger:  logger,
		mux:     mux,
		deps:    deps,
		started: time.Now(),
	}

	s.setupRoutes(cfg)

	// outermost first: logging, request deadline, then metrics next to the
	// mux so the matched pattern is visible
	var h http.Handler = mux
	h = metrics.HTTPMiddleware(deps.Metrics)(h)
	h = middleware.Timeout(cfg.RequestTimeout)(h)
	h = metrics.LoggingMiddleware(logger)(h)

	writeTimeout := cfg.RequestTimeout + 15*time.Second
	if cfg.RequestTimeout <= 0 {
		writeTimeout = 0
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) {
	auth := middleware.APIKeyAuth(cfg.APIKey)
	protect := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, auth(h))
	}

	predict := handler.NewPredictHandler(s.deps.Forecaster)
	cacheH := handler.NewCacheHandler(s.deps.Forecaster)
	archiveH := handler.NewArchiveHandler(s.deps.Forecaster)

	s.mux.HandleFunc("GET /health", s.handleHealth)

	protect("GET /predict/{symbol}", predict.Predict)
	protect("GET /predict-simple/{symbol}", predict.PredictSimple)
	protect("POST /predict-batch", predict.Batch)
	protect("GET /cache/status", cacheH.Status)
	protect("POST /cache/clear", cacheH.Clear)
	protect("GET /archive/{symbol}", archiveH.History)

	if s.deps.Warmup != nil {
		warm := handler.NewWarmupHandler(s.deps.BaseCtx, s.deps.Warmup, s.deps.WarmupSymbols)
		protect("POST /cache/warmup", warm.Trigger)
	}

	if cfg.MetricsPath != "" && s.deps.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
	response.JSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"cache_entries":  len(s.deps.Forecaster.CacheStatus()),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// Package server exposes TWAP reports over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/server/handler"
	"github.com/alanyoungcy/twapwatch/internal/server/middleware"
	"github.com/alanyoungcy/twapwatch/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per RateWindow per client IP; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Collect and
// History are optional and their routes are omitted when nil.
type Handlers struct {
	Health  *handler.HealthHandler
	TWAP    *handler.TWAPHandler
	Collect *handler.CollectHandler
	History *handler.HistoryHandler
}

// Deps are the optional cross-cutting collaborators.
type Deps struct {
	Hub     *ws.Hub
	Limiter domain.RateLimiter
	// Metrics, when set, backs GET /metrics and the request counter.
	Metrics interface {
		middleware.HTTPObserver
		Handler() http.Handler
	}
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// Middleware runs outermost first: CORS, logging, metrics, auth, rate limit.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/twap", handlers.TWAP.ListReports)
	mux.HandleFunc("GET /api/twap/{symbol}", handlers.TWAP.GetReport)
	mux.HandleFunc("DELETE /api/twap/cache", handlers.TWAP.ClearCache)

	if handlers.Collect != nil {
		mux.HandleFunc("POST /api/collect", handlers.Collect.Collect)
	}
	if handlers.History != nil {
		mux.HandleFunc("GET /api/history/{symbol}", handlers.History.GetHistory)
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if deps.Metrics != nil {
		h = middleware.Metrics(deps.Metrics)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Reports can take up to the detection deadline.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

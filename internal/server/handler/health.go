package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	exchanges []string
	backends  map[string]Pinger
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the enabled exchanges
// and the reachability of each named backend (postgres, redis).
func NewHealthHandler(exchanges []string, backends map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{exchanges: exchanges, backends: backends, logger: logger}
}

// HealthCheck responds with "ok", or "degraded" and 503 when a backend
// fails its ping.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.backends))

	names := make([]string, 0, len(h.backends))
	for name := range h.backends {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := h.backends[name].Ping(ctx)
		cancel()
		if err != nil {
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("backend", name),
				slog.String("error", err.Error()),
			)
			checks[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"exchanges": h.exchanges,
		"backends":  checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

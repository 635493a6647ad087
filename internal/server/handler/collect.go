package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// CollectRunner triggers a collection pass. service.CollectorService
// satisfies it.
type CollectRunner interface {
	CollectAll(ctx context.Context, windowMinutes int) map[string]int
}

// CollectHandler serves the manual collection trigger.
type CollectHandler struct {
	collector     CollectRunner
	defaultWindow int
	logger        *slog.Logger
}

// NewCollectHandler creates a CollectHandler.
func NewCollectHandler(collector CollectRunner, defaultWindow int, logger *slog.Logger) *CollectHandler {
	if defaultWindow <= 0 {
		defaultWindow = 60
	}
	return &CollectHandler{
		collector:     collector,
		defaultWindow: defaultWindow,
		logger:        logHandler(logger, "collect"),
	}
}

// Collect runs one collection pass synchronously and returns the per-symbol
// trade counts.
// POST /api/collect?window=60
func (h *CollectHandler) Collect(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, h.defaultWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	counts := h.collector.CollectAll(r.Context(), window)
	total := 0
	for _, n := range counts {
		total += n
	}
	h.logger.InfoContext(r.Context(), "manual collection finished",
		slog.Int("window_minutes", window),
		slog.Int("trades", total),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"window_minutes": window,
		"collected":      counts,
		"total":          total,
	})
}

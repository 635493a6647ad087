package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// HistoryReader loads archived reports. s3blob.Archiver satisfies it.
type HistoryReader interface {
	History(ctx context.Context, symbol string, day time.Time) ([]domain.TWAPReport, error)
}

// HistoryHandler serves archived reports.
type HistoryHandler struct {
	history HistoryReader
	now     func() time.Time
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(history HistoryReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, now: time.Now, logger: logHandler(logger, "history")}
}

// GetHistory lists one UTC day of archived reports for a symbol, oldest first.
// GET /api/history/{symbol}?date=2024-03-10
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	day := h.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	reports, err := h.history.History(r.Context(), symbol, day)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	if reports == nil {
		reports = []domain.TWAPReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":  symbol,
		"date":    day.Format(time.DateOnly),
		"reports": reports,
	})
}

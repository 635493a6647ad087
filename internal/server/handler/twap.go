package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/service"
)

// ReportService is the part of service.DetectorService the API exposes.
type ReportService interface {
	Report(ctx context.Context, symbol string, windowMinutes int, opts service.ReportOptions) (domain.TWAPReport, error)
	Reports(ctx context.Context, symbols []string, windowMinutes int) (map[string]domain.TWAPReport, error)
	ClearCache(ctx context.Context) error
}

// TWAPHandler serves report endpoints.
type TWAPHandler struct {
	reports       ReportService
	defaultWindow int
	symbols       []string
	logger        *slog.Logger
}

// NewTWAPHandler creates a TWAPHandler. symbols is used when a multi-report
// request names none.
func NewTWAPHandler(reports ReportService, defaultWindow int, symbols []string, logger *slog.Logger) *TWAPHandler {
	if defaultWindow <= 0 {
		defaultWindow = 15
	}
	return &TWAPHandler{
		reports:       reports,
		defaultWindow: defaultWindow,
		symbols:       symbols,
		logger:        logHandler(logger, "twap"),
	}
}

// GetReport returns one report.
// GET /api/twap/{symbol}?window=15&force=false&price=
func (h *TWAPHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	window, err := parseWindow(r, h.defaultWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var opts service.ReportOptions
	q := r.URL.Query()
	if v := q.Get("force"); v != "" {
		if opts.Force, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
	}
	if v := q.Get("price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p <= 0 {
			writeError(w, http.StatusBadRequest, "price must be a positive number")
			return
		}
		opts.CurrentPrice = &p
	}

	report, err := h.reports.Report(r.Context(), symbol, window, opts)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListReports returns reports for several symbols.
// GET /api/twap?symbols=BTCUSDT,ETHUSDT&window=15
func (h *TWAPHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, h.defaultWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbols := parseSymbols(r, h.symbols)

	reports, err := h.reports.Reports(r.Context(), symbols, window)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window_minutes": window,
		"reports":        reports,
	})
}

// ClearCache drops every cached report.
// DELETE /api/twap/cache
func (h *TWAPHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.reports.ClearCache(r.Context()); err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

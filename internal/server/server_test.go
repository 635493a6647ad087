package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/cache/memory"
	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/metrics"
	"github.com/alanyoungcy/twapwatch/internal/server/handler"
	"github.com/alanyoungcy/twapwatch/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type reportCall struct {
	symbol string
	window int
	opts   service.ReportOptions
}

type fakeReports struct {
	mu      sync.Mutex
	calls   []reportCall
	symbols []string
	cleared int
	err     error
}

func (f *fakeReports) Report(_ context.Context, symbol string, window int, opts service.ReportOptions) (domain.TWAPReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reportCall{symbol, window, opts})
	if f.err != nil {
		return domain.TWAPReport{}, f.err
	}
	return domain.TWAPReport{Symbol: symbol, WindowMinutes: window, DominantDirection: domain.DirectionNeutral}, nil
}

func (f *fakeReports) Reports(_ context.Context, symbols []string, window int) (map[string]domain.TWAPReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = symbols
	out := make(map[string]domain.TWAPReport, len(symbols))
	for _, s := range symbols {
		out[s] = domain.TWAPReport{Symbol: s, WindowMinutes: window}
	}
	return out, nil
}

func (f *fakeReports) ClearCache(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

type fakeCollect struct {
	window int
}

func (f *fakeCollect) CollectAll(_ context.Context, window int) map[string]int {
	f.window = window
	return map[string]int{"BTCUSDT": 10, "ETHUSDT": 5}
}

type fakeHistory struct {
	day time.Time
}

func (f *fakeHistory) History(_ context.Context, symbol string, day time.Time) ([]domain.TWAPReport, error) {
	f.day = day
	return []domain.TWAPReport{{Symbol: symbol}}, nil
}

type fixture struct {
	srv     *Server
	reports *fakeReports
	collect *fakeCollect
	history *fakeHistory
	metrics *metrics.Metrics
	redis   *fakePinger
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := testLogger()
	f := &fixture{
		reports: &fakeReports{},
		collect: &fakeCollect{},
		history: &fakeHistory{},
		metrics: metrics.New(),
		redis:   &fakePinger{},
	}
	f.srv = NewServer(cfg, Handlers{
		Health: handler.NewHealthHandler([]string{"Binance", "OKX"},
			map[string]handler.Pinger{"redis": f.redis}, logger),
		TWAP:    handler.NewTWAPHandler(f.reports, 15, []string{"BTCUSDT", "ETHUSDT"}, logger),
		Collect: handler.NewCollectHandler(f.collect, 60, logger),
		History: handler.NewHistoryHandler(f.history, logger),
	}, Deps{
		Limiter: memory.NewRateLimiter(nil),
		Metrics: f.metrics,
	}, logger)
	return f
}

func (f *fixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"Binance", "OKX"}, body["exchanges"])
	assert.Equal(t, map[string]any{"redis": "up"}, body["backends"])
}

func TestHealthDegraded(t *testing.T) {
	f := newFixture(t, Config{})
	f.redis.err = errors.New("connection refused")

	rec := f.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"redis": "down"}, body["backends"])
}

func TestGetReport(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodGet, "/api/twap/btcusdt?window=30&force=true&price=65000.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.TWAPReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, 30, got.WindowMinutes)

	require.Len(t, f.reports.calls, 1)
	call := f.reports.calls[0]
	assert.True(t, call.opts.Force)
	require.NotNil(t, call.opts.CurrentPrice)
	assert.InDelta(t, 65000.5, *call.opts.CurrentPrice, 1e-9)
}

func TestGetReportDefaultsWindow(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodGet, "/api/twap/ETHUSDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, f.reports.calls[0].window)
	assert.False(t, f.reports.calls[0].opts.Force)
	assert.Nil(t, f.reports.calls[0].opts.CurrentPrice)
}

func TestGetReportBadParams(t *testing.T) {
	f := newFixture(t, Config{})
	for _, target := range []string{
		"/api/twap/BTCUSDT?window=0",
		"/api/twap/BTCUSDT?window=abc",
		"/api/twap/BTCUSDT?window=1441",
		"/api/twap/BTCUSDT?force=maybe",
		"/api/twap/BTCUSDT?price=-1",
	} {
		rec := f.do(http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	assert.Empty(t, f.reports.calls)
}

func TestGetReportServiceErrors(t *testing.T) {
	f := newFixture(t, Config{})
	f.reports.err = domain.ErrInvalidArgument
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/twap/BTCUSDT", nil).Code)

	f.reports.err = assert.AnError
	rec := f.do(http.MethodGet, "/api/twap/BTCUSDT", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestListReports(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodGet, "/api/twap?symbols=solusdt,,SOLUSDT,xrpusdt&window=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, f.reports.symbols)

	var body struct {
		WindowMinutes int                          `json:"window_minutes"`
		Reports       map[string]domain.TWAPReport `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.WindowMinutes)
	assert.Len(t, body.Reports, 2)

	f.do(http.MethodGet, "/api/twap", nil)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, f.reports.symbols)
}

func TestClearCache(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodDelete, "/api/twap/cache", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.reports.cleared)
}

func TestCollect(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodPost, "/api/collect?window=120", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 120, f.collect.window)

	var body struct {
		Collected map[string]int `json:"collected"`
		Total     int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 15, body.Total)
	assert.Equal(t, 10, body.Collected["BTCUSDT"])

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/collect", nil).Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodGet, "/api/history/btcusdt?date=2024-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), f.history.day)
	assert.Contains(t, rec.Body.String(), `"symbol":"BTCUSDT"`)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/history/BTCUSDT?date=10-03-2024", nil).Code)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "s3cret"})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/twap/BTCUSDT", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(http.MethodGet, "/api/twap/BTCUSDT", http.Header{"X-Api-Key": {"wrong"}}).Code)
	assert.Equal(t, http.StatusOK,
		f.do(http.MethodGet, "/api/twap/BTCUSDT", http.Header{"Authorization": {"Bearer s3cret"}}).Code)
	assert.Equal(t, http.StatusOK,
		f.do(http.MethodGet, "/api/twap/BTCUSDT", http.Header{"X-Api-Key": {"s3cret"}}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/twap/BTCUSDT?api_key=s3cret", nil).Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 2, RateWindow: time.Minute})
	hdr := http.Header{"X-Forwarded-For": {"10.0.0.1"}}

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/health", hdr).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/health", hdr).Code)
	rec := f.do(http.MethodGet, "/api/health", hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// A different client has its own budget.
	other := http.Header{"X-Forwarded-For": {"10.0.0.2, 172.16.0.1"}}
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/health", other).Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"http://localhost:3000"}})

	rec := f.do(http.MethodOptions, "/api/twap/BTCUSDT", http.Header{"Origin": {"http://localhost:3000"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/api/health", http.Header{"Origin": {"http://evil.example"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(http.MethodGet, "/api/twap/BTCUSDT", nil)
	f.do(http.MethodGet, "/nope", nil)

	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="GET /api/twap/{symbol}"`), body)
	assert.Contains(t, body, `route="unmatched"`)
}

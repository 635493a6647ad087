package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObserveRequest("Binance", "ok", 120*time.Millisecond)
	m.ObserveRequest("Binance", "http_error", time.Second)
	m.ObserveRetry("Bybit")
	m.ObserveTrades("OKX", 42)
	m.ObserveReport("network", domain.TWAPReport{Symbol: "BTCUSDT", AvgAlgoScore: 0.75})
	m.ObserveReport("cache", domain.TWAPReport{Symbol: "BTCUSDT", AvgAlgoScore: 0.75})
	m.ObserveHTTP("GET", "/api/twap/{symbol}", 200)

	out := scrape(t, m)
	for _, want := range []string{
		`twapwatch_exchange_requests_total{exchange="Binance",outcome="ok"} 1`,
		`twapwatch_exchange_requests_total{exchange="Binance",outcome="http_error"} 1`,
		`twapwatch_exchange_request_seconds_count{exchange="Binance"} 2`,
		`twapwatch_exchange_retries_total{exchange="Bybit"} 1`,
		`twapwatch_trades_fetched_total{exchange="OKX"} 42`,
		`twapwatch_reports_total{source="network"} 1`,
		`twapwatch_reports_total{source="cache"} 1`,
		`twapwatch_report_algo_score{symbol="BTCUSDT"} 0.75`,
		`twapwatch_http_requests_total{method="GET",route="/api/twap/{symbol}",status="200"} 1`,
		`go_goroutines`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveRetry("Gate")

	assert.Contains(t, scrape(t, a), `twapwatch_exchange_retries_total{exchange="Gate"} 1`)
	assert.NotContains(t, scrape(t, b), `exchange="Gate"`)
}

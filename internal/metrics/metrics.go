// Package metrics exposes Prometheus instrumentation on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

const namespace = "twapwatch"

// Metrics holds every collector. It satisfies httpx.Observer and
// detector.Observer.
type Metrics struct {
	registry *prometheus.Registry

	exchangeRequests *prometheus.CounterVec
	exchangeLatency  *prometheus.HistogramVec
	exchangeRetries  *prometheus.CounterVec
	tradesFetched    *prometheus.CounterVec
	reports          *prometheus.CounterVec
	algoScore        *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		exchangeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_requests_total",
			Help:      "Exchange REST requests by outcome.",
		}, []string{"exchange", "outcome"}),
		exchangeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_seconds",
			Help:      "Exchange REST request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"exchange"}),
		exchangeRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_retries_total",
			Help:      "Exchange REST retries.",
		}, []string{"exchange"}),
		tradesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_fetched_total",
			Help:      "Trades returned by exchange clients.",
		}, []string{"exchange"}),
		reports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports served by source (cache, store, network).",
		}, []string{"source"}),
		algoScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_algo_score",
			Help:      "Average algo score of the latest report per symbol.",
		}, []string{"symbol"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveRequest records one exchange request attempt.
func (m *Metrics) ObserveRequest(exchange, outcome string, elapsed time.Duration) {
	m.exchangeRequests.WithLabelValues(exchange, outcome).Inc()
	m.exchangeLatency.WithLabelValues(exchange).Observe(elapsed.Seconds())
}

// ObserveRetry records one exchange retry.
func (m *Metrics) ObserveRetry(exchange string) {
	m.exchangeRetries.WithLabelValues(exchange).Inc()
}

// ObserveTrades adds n to the exchange's fetched-trade counter.
func (m *Metrics) ObserveTrades(exchange string, n int) {
	m.tradesFetched.WithLabelValues(exchange).Add(float64(n))
}

// ObserveReport counts a served report and updates the symbol's score gauge.
func (m *Metrics) ObserveReport(source string, report domain.TWAPReport) {
	m.reports.WithLabelValues(source).Inc()
	if report.Symbol != "" {
		m.algoScore.WithLabelValues(report.Symbol).Set(report.AvgAlgoScore)
	}
}

// ObserveHTTP counts one API response.
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

package detector

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

const (
	defaultCallTimeout = 15 * time.Second
	defaultDeadline    = 30 * time.Second
)

// Report sources, as passed to Observer.ObserveReport.
const (
	SourceStore   = "store"
	SourceNetwork = "network"
)

// Observer receives detection counters. metrics.Metrics satisfies it.
type Observer interface {
	ObserveTrades(exchange string, n int)
	ObserveReport(source string, report domain.TWAPReport)
}

// AggregatorConfig wires an Aggregator. Clients is the only required field.
type AggregatorConfig struct {
	Clients []domain.ExchangeClient
	// Store, when set, is consulted before any exchange is called.
	Store domain.TradeLookup
	// Analyzer defaults to NewAnalyzer(DefaultAnalyzerConfig()).
	Analyzer *Analyzer
	// CallTimeout bounds a single client's FetchAll.
	CallTimeout time.Duration
	// Deadline bounds the whole fan-out. Clients still running when it
	// passes are abandoned.
	Deadline time.Duration
	Now      func() time.Time
	Observer Observer
	Logger   *slog.Logger
}

// Aggregator runs the analyzer over every exchange for one symbol and window
// and folds the results into a TWAPReport.
type Aggregator struct {
	clients     []domain.ExchangeClient
	store       domain.TradeLookup
	analyzer    *Analyzer
	callTimeout time.Duration
	deadline    time.Duration
	now         func() time.Time
	observer    Observer
	logger      *slog.Logger
}

// exchangeTrades is one exchange's slice of the window.
type exchangeTrades struct {
	exchange string
	trades   []domain.Trade
}

// NewAggregator creates an Aggregator, filling unset fields with defaults.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	a := &Aggregator{
		clients:     slices.Clone(cfg.Clients),
		store:       cfg.Store,
		analyzer:    cfg.Analyzer,
		callTimeout: cfg.CallTimeout,
		deadline:    cfg.Deadline,
		now:         cfg.Now,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
	}
	if a.analyzer == nil {
		a.analyzer = NewAnalyzer(DefaultAnalyzerConfig())
	}
	if a.callTimeout <= 0 {
		a.callTimeout = defaultCallTimeout
	}
	if a.deadline <= 0 {
		a.deadline = defaultDeadline
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With(slog.String("component", "aggregator"))
	return a
}

// Exchanges returns the configured client names in order.
func (a *Aggregator) Exchanges() []string {
	names := make([]string, len(a.clients))
	for i, c := range a.clients {
		names[i] = c.Name()
	}
	return names
}

// Detect builds the report for symbol over the last windowMinutes. When
// currentPrice is nil the last trade price of the first exchange with data is
// used. An empty symbol or non-positive window is the only error; missing
// data yields a zero report.
func (a *Aggregator) Detect(ctx context.Context, symbol string, windowMinutes int, currentPrice *float64) (domain.TWAPReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.TWAPReport{}, fmt.Errorf("detector: detect: empty symbol: %w", domain.ErrInvalidArgument)
	}
	if windowMinutes <= 0 {
		return domain.TWAPReport{}, fmt.Errorf("detector: detect: window %d: %w", windowMinutes, domain.ErrInvalidArgument)
	}

	now := a.now()
	untilMs := now.UnixMilli()
	sinceMs := untilMs - int64(windowMinutes)*60_000

	source := SourceStore
	groups := a.fromStore(ctx, symbol, sinceMs, untilMs)
	if len(groups) == 0 {
		source = SourceNetwork
		groups = a.fromExchanges(ctx, symbol, sinceMs, untilMs)
	}

	var price float64
	if currentPrice != nil {
		price = *currentPrice
	} else {
		for _, g := range groups {
			if len(g.trades) > 0 {
				price = latestPrice(g.trades)
				break
			}
		}
	}

	analyses := make([]domain.ExchangeAnalysis, 0, len(groups))
	for _, g := range groups {
		if len(g.trades) == 0 {
			continue
		}
		analyses = append(analyses, a.analyzer.Analyze(g.exchange, g.trades, price))
	}

	report := BuildReport(symbol, windowMinutes, now, analyses)
	if a.observer != nil {
		a.observer.ObserveReport(source, report)
	}
	a.logger.DebugContext(ctx, "report built",
		slog.String("symbol", symbol),
		slog.Int("window_minutes", windowMinutes),
		slog.String("source", source),
		slog.Int("exchanges", len(report.Exchanges)),
		slog.Float64("avg_algo_score", report.AvgAlgoScore),
	)
	return report, nil
}

// BuildReport folds per-exchange analyses into a report. The analyses keep
// their order.
func BuildReport(symbol string, windowMinutes int, ts time.Time, analyses []domain.ExchangeAnalysis) domain.TWAPReport {
	r := domain.TWAPReport{
		Symbol:            symbol,
		Timestamp:         ts,
		WindowMinutes:     windowMinutes,
		Exchanges:         make([]domain.ExchangeAnalysis, 0, len(analyses)),
		DominantDirection: domain.DirectionNeutral,
		BuyExchanges:      []string{},
		SellExchanges:     []string{},
	}
	if len(analyses) == 0 {
		return r
	}

	var scoreSum float64
	for _, ex := range analyses {
		r.Exchanges = append(r.Exchanges, ex)
		r.TotalAlgoVolumeUSD += ex.AlgoVolumeUSD
		r.TotalNetFlowUSD += ex.NetFlowUSD
		scoreSum += ex.AlgoScore
		switch ex.Direction {
		case domain.DirectionBuy:
			r.BuyExchanges = append(r.BuyExchanges, ex.Exchange)
		case domain.DirectionSell:
			r.SellExchanges = append(r.SellExchanges, ex.Exchange)
		}
	}
	r.AvgAlgoScore = scoreSum / float64(len(analyses))

	switch {
	case len(r.BuyExchanges) > len(r.SellExchanges):
		r.DominantDirection = domain.DirectionBuy
	case len(r.SellExchanges) > len(r.BuyExchanges):
		r.DominantDirection = domain.DirectionSell
	}
	r.SynchronizationScore = SyncScore(analyses)
	return r
}

// SyncScore is the share of exchanges in the largest direction group.
// Zero analyses score 0 and a single one scores 1.
func SyncScore(analyses []domain.ExchangeAnalysis) float64 {
	n := len(analyses)
	switch n {
	case 0:
		return 0
	case 1:
		return 1
	}
	counts := make(map[domain.Direction]int, 3)
	for _, ex := range analyses {
		counts[ex.Direction]++
	}
	largest := 0
	for _, c := range counts {
		largest = max(largest, c)
	}
	return float64(largest) / float64(n)
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// fromStore groups stored trades by exchange, sorted by name. Any error or an
// empty result returns nil so the caller falls through to the network.
func (a *Aggregator) fromStore(ctx context.Context, symbol string, sinceMs, untilMs int64) []exchangeTrades {
	if a.store == nil {
		return nil
	}
	trades, err := a.store.FindByPeriod(ctx, symbol, sinceMs, untilMs)
	if err != nil {
		a.logger.WarnContext(ctx, "store lookup failed, falling back to exchanges",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if len(trades) == 0 {
		return nil
	}

	byExchange := make(map[string][]domain.Trade)
	for _, t := range trades {
		byExchange[t.Exchange] = append(byExchange[t.Exchange], t)
	}
	groups := make([]exchangeTrades, 0, len(byExchange))
	for name, ts := range byExchange {
		groups = append(groups, exchangeTrades{exchange: name, trades: ts})
	}
	slices.SortFunc(groups, func(x, y exchangeTrades) int {
		return cmp.Compare(x.exchange, y.exchange)
	})
	return groups
}

// fromExchanges calls every client concurrently. Results are indexed by client
// position so the output order is the configured order.
func (a *Aggregator) fromExchanges(ctx context.Context, symbol string, sinceMs, untilMs int64) []exchangeTrades {
	if len(a.clients) == 0 {
		return nil
	}
	fanCtx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	results := make([]exchangeTrades, len(a.clients))
	g, gctx := errgroup.WithContext(fanCtx)
	for i, c := range a.clients {
		g.Go(func() error {
			callCtx, callCancel := context.WithTimeout(gctx, a.callTimeout)
			defer callCancel()
			trades := a.fetch(callCtx, c, symbol, sinceMs, untilMs)
			results[i] = exchangeTrades{exchange: c.Name(), trades: trades}
			if a.observer != nil {
				a.observer.ObserveTrades(c.Name(), len(trades))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fetch runs one client's FetchAll and gives up when ctx ends, whether or not
// the client honours cancellation.
func (a *Aggregator) fetch(ctx context.Context, c domain.ExchangeClient, symbol string, sinceMs, untilMs int64) []domain.Trade {
	done := make(chan []domain.Trade, 1)
	go func() {
		done <- c.FetchAll(ctx, symbol, sinceMs, untilMs)
	}()

	select {
	case trades := <-done:
		return trades
	case <-ctx.Done():
		a.logger.WarnContext(ctx, "exchange call abandoned",
			slog.String("exchange", c.Name()),
			slog.String("symbol", symbol),
			slog.String("error", ctx.Err().Error()),
		)
		return nil
	}
}

// latestPrice returns the price of the trade with the greatest time. Later
// entries win ties.
func latestPrice(trades []domain.Trade) float64 {
	best := trades[0]
	for _, t := range trades[1:] {
		if t.Time >= best.Time {
			best = t
		}
	}
	return best.Price
}

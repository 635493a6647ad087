package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/notify"
)

const (
	defaultLockTTL   = 10 * time.Minute
	defaultRetention = 24 * time.Hour
)

// DefaultSymbols are collected when no symbol list is configured.
var DefaultSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}

// CollectorConfig wires a CollectorService. Clients, Store and Locks are
// required.
type CollectorConfig struct {
	Clients []domain.ExchangeClient
	Store   domain.TradeStore
	Locks   domain.LockManager
	// Archiver, when set, copies rows to cold storage before Cleanup deletes
	// them.
	Archiver domain.TradeArchiver
	Alerter  Alerter
	Symbols  []string
	LockTTL  time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

// CollectorService periodically persists exchange trades so reports can be
// built without hitting the exchanges.
type CollectorService struct {
	clients  []domain.ExchangeClient
	store    domain.TradeStore
	locks    domain.LockManager
	archiver domain.TradeArchiver
	alerter  Alerter
	symbols  []string
	lockTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewCollectorService creates a CollectorService.
func NewCollectorService(cfg CollectorConfig) *CollectorService {
	s := &CollectorService{
		clients:  slices.Clone(cfg.Clients),
		store:    cfg.Store,
		locks:    cfg.Locks,
		archiver: cfg.Archiver,
		alerter:  cfg.Alerter,
		symbols:  slices.Clone(cfg.Symbols),
		lockTTL:  cfg.LockTTL,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if len(s.symbols) == 0 {
		s.symbols = slices.Clone(DefaultSymbols)
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "collector_service"))
	return s
}

// Symbols returns the configured symbol list.
func (s *CollectorService) Symbols() []string {
	return slices.Clone(s.symbols)
}

// CollectSymbol fetches the last windowMinutes of trades from every exchange
// and stores them. It returns the number of trades fetched, which may exceed
// the number inserted when windows overlap.
func (s *CollectorService) CollectSymbol(ctx context.Context, symbol string, windowMinutes int) (int, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("collector_service: collect: empty symbol: %w", domain.ErrInvalidArgument)
	}
	if windowMinutes <= 0 {
		return 0, fmt.Errorf("collector_service: collect: window %d: %w", windowMinutes, domain.ErrInvalidArgument)
	}

	unlock, err := s.locks.Acquire(ctx, "collect:"+symbol, s.lockTTL)
	if err != nil {
		return 0, fmt.Errorf("collector_service: collect %s: %w", symbol, err)
	}
	defer unlock()

	now := s.now()
	untilMs := now.UnixMilli()
	sinceMs := untilMs - int64(windowMinutes)*60_000

	results := make([][]domain.Trade, len(s.clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.clients {
		g.Go(func() error {
			results[i] = c.FetchAll(gctx, symbol, sinceMs, untilMs)
			return nil
		})
	}
	_ = g.Wait()

	var (
		all     []domain.Trade
		fetched int
	)
	for i, trades := range results {
		if len(trades) == 0 {
			s.logger.DebugContext(ctx, "no trades from exchange",
				slog.String("symbol", symbol),
				slog.String("exchange", s.clients[i].Name()),
			)
			continue
		}
		fetched += len(trades)
		all = append(all, trades...)
	}
	if fetched == 0 {
		return 0, nil
	}

	inserted, err := s.store.InsertBatch(ctx, symbol, untilMs, all)
	if err != nil {
		return 0, fmt.Errorf("collector_service: store %s: %w", symbol, err)
	}
	s.logger.InfoContext(ctx, "trades collected",
		slog.String("symbol", symbol),
		slog.Int("fetched", fetched),
		slog.Int64("inserted", inserted),
	)
	return fetched, nil
}

// CollectAll runs CollectSymbol for each configured symbol in turn. A failed
// symbol counts as 0 and raises collect_error.
func (s *CollectorService) CollectAll(ctx context.Context, windowMinutes int) map[string]int {
	out := make(map[string]int, len(s.symbols))
	for _, sym := range s.symbols {
		n, err := s.CollectSymbol(ctx, sym, windowMinutes)
		if err != nil {
			s.logger.ErrorContext(ctx, "collect failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			s.notifyError(ctx, sym, err)
			n = 0
		}
		out[strings.ToUpper(sym)] = n
	}
	return out
}

// Cleanup removes trades collected more than maxAge ago, archiving them first
// when an archiver is configured. A failed archive leaves the rows in place.
func (s *CollectorService) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = defaultRetention
	}
	cutoff := s.now().Add(-maxAge).UnixMilli()

	if s.archiver != nil {
		n, err := s.archiver.ArchiveTrades(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("collector_service: archive before cleanup: %w", err)
		}
		s.logger.InfoContext(ctx, "trades archived", slog.Int64("count", n))
	}

	deleted, err := s.store.DeleteCollectedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("collector_service: cleanup: %w", err)
	}
	s.logger.InfoContext(ctx, "old trades removed",
		slog.Int64("deleted", deleted),
		slog.Duration("max_age", maxAge),
	)
	return deleted, nil
}

// ----- Internal helpers -----

func (s *CollectorService) notifyError(ctx context.Context, symbol string, cause error) {
	if s.alerter == nil || !s.alerter.Enabled(notify.EventCollectError) {
		return
	}
	title := "Trade collection failed for " + symbol
	if err := s.alerter.Notify(ctx, notify.EventCollectError, title, cause.Error()); err != nil {
		s.logger.WarnContext(ctx, "collect alert failed", slog.String("error", err.Error()))
	}
}

// Package app wires the exchange clients, stores, caches, services and
// servers together and runs them according to the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/config"
	"github.com/alanyoungcy/twapwatch/internal/detector"
	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	deps      *Dependencies
	detector  *service.DetectorService
	collector *service.CollectorService
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Init wires dependencies and builds the services. Run calls it; the
// one-shot CLI commands call it directly.
func (a *App) Init(ctx context.Context) error {
	if a.deps != nil {
		return nil
	}
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.deps = deps

	var lookup domain.TradeLookup
	if a.cfg.Detector.UseStore && deps.TradeStore != nil {
		lookup = deps.TradeStore
	}
	agg := detector.NewAggregator(detector.AggregatorConfig{
		Clients:     deps.Clients,
		Store:       lookup,
		CallTimeout: a.cfg.Detector.CallTimeout.Duration,
		Deadline:    a.cfg.Detector.Deadline.Duration,
		Observer:    deps.Metrics,
		Logger:      a.logger,
	})

	var reportArchiver domain.ReportArchiver
	if a.cfg.Detector.ArchiveReports && deps.Archiver != nil {
		reportArchiver = deps.Archiver
	}
	a.detector = service.NewDetectorService(service.DetectorConfig{
		Detector:      agg,
		Cache:         deps.ReportCache,
		Bus:           deps.SignalBus,
		Alerter:       deps.Notifier,
		Archiver:      reportArchiver,
		Observer:      deps.Metrics,
		CacheTTL:      a.cfg.Detector.CacheTTL.Duration,
		AlertMinScore: a.cfg.Detector.AlertMinScore,
		Logger:        a.logger,
	})

	if deps.TradeStore != nil {
		var tradeArchiver domain.TradeArchiver
		if a.cfg.Collector.Archive && deps.Archiver != nil {
			tradeArchiver = deps.Archiver
		}
		a.collector = service.NewCollectorService(service.CollectorConfig{
			Clients:  deps.Clients,
			Store:    deps.TradeStore,
			Locks:    deps.LockManager,
			Archiver: tradeArchiver,
			Alerter:  deps.Notifier,
			Symbols:  a.cfg.Detector.Symbols,
			LockTTL:  a.cfg.Collector.LockTTL.Duration,
			Logger:   a.logger,
		})
	}

	a.logger.InfoContext(ctx, "dependencies wired",
		slog.Any("exchanges", agg.Exchanges()),
		slog.Bool("postgres", deps.TradeStore != nil),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", deps.Archiver != nil),
	)
	return nil
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	if err := a.Init(ctx); err != nil {
		return err
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode(ctx)
	case "collect":
		return a.CollectMode(ctx)
	case "full":
		return a.FullMode(ctx)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Detect returns one report, bypassing the cache when force is set.
func (a *App) Detect(ctx context.Context, symbol string, windowMinutes int, force bool) (domain.TWAPReport, error) {
	if err := a.Init(ctx); err != nil {
		return domain.TWAPReport{}, err
	}
	return a.detector.Report(ctx, symbol, windowMinutes, service.ReportOptions{Force: force})
}

// Collect runs one collection pass over the configured symbols.
func (a *App) Collect(ctx context.Context, windowMinutes int) (map[string]int, error) {
	if err := a.Init(ctx); err != nil {
		return nil, err
	}
	if a.collector == nil {
		return nil, fmt.Errorf("app: collect requires postgres.enabled")
	}
	return a.collector.CollectAll(ctx, windowMinutes), nil
}

// Cleanup removes trades older than maxAge, archiving them first when
// configured.
func (a *App) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	if err := a.Init(ctx); err != nil {
		return 0, err
	}
	if a.collector == nil {
		return 0, fmt.Errorf("app: cleanup requires postgres.enabled")
	}
	return a.collector.Cleanup(ctx, maxAge)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/twapwatch/internal/pipeline"
	"github.com/alanyoungcy/twapwatch/internal/server"
	"github.com/alanyoungcy/twapwatch/internal/server/handler"
	"github.com/alanyoungcy/twapwatch/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the API and, when report_interval is set, keeps the
// configured symbols' reports warm.
func (a *App) ServerMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, false)
	a.startOrchestrator(ctx, g, false)
	return ignoreCanceled(g.Wait())
}

// CollectMode runs the collector and retention loops without the API.
func (a *App) CollectMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting collect mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startOrchestrator(ctx, g, true)
	return ignoreCanceled(g.Wait())
}

// FullMode runs the API, warm-up, collector and retention loops together.
func (a *App) FullMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, true)
	a.startOrchestrator(ctx, g, true)
	return ignoreCanceled(g.Wait())
}

// startOrchestrator runs the background loops. collect enables collection and
// retention; warm-up follows detector.report_interval.
func (a *App) startOrchestrator(ctx context.Context, g *errgroup.Group, collect bool) {
	cfg := pipeline.Config{
		Logger: a.logger,
	}
	if collect && a.collector != nil {
		cfg.Collector = a.collector
		cfg.CollectInterval = a.cfg.Collector.Interval.Duration
		cfg.CollectWindow = a.cfg.Collector.WindowMinutes
		cfg.Retention = a.cfg.Collector.Retention.Duration
		cfg.CleanupCron = a.cfg.Collector.CleanupCron
	}
	if iv := a.cfg.Detector.ReportInterval.Duration; iv > 0 {
		cfg.Warmer = a.detector
		cfg.WarmInterval = iv
		cfg.WarmSymbols = a.cfg.Detector.Symbols
		cfg.WarmWindow = a.cfg.Detector.DefaultWindowMinutes
	}
	if cfg.Collector == nil && cfg.Warmer == nil {
		return
	}

	orch := pipeline.NewOrchestrator(cfg)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer registers the API and WebSocket hub and shuts the server
// down when ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, withCollect bool) {
	deps := a.deps

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(exchangeNames(deps), deps.Backends, a.logger),
		TWAP: handler.NewTWAPHandler(a.detector, a.cfg.Detector.DefaultWindowMinutes,
			a.cfg.Detector.Symbols, a.logger),
	}
	if withCollect && a.collector != nil {
		handlers.Collect = handler.NewCollectHandler(a.collector, a.cfg.Collector.WindowMinutes, a.logger)
	}
	if deps.Archiver != nil {
		handlers.History = handler.NewHistoryHandler(deps.Archiver, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.cfg.Server.CORSOrigins, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, server.Deps{
		Hub:     hub,
		Limiter: deps.RateLimiter,
		Metrics: deps.Metrics,
	}, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})
}

func exchangeNames(deps *Dependencies) []string {
	names := make([]string, len(deps.Clients))
	for i, c := range deps.Clients {
		names[i] = c.Name()
	}
	return names
}

// ignoreCanceled treats a cancelled context as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Package pipeline schedules the background loops: periodic trade
// collection, cron-driven retention and report warm-up.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Collector is the part of service.CollectorService the loops drive.
type Collector interface {
	CollectAll(ctx context.Context, windowMinutes int) map[string]int
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Warmer rebuilds cached reports. service.DetectorService satisfies it.
type Warmer interface {
	Refresh(ctx context.Context, symbols []string, windowMinutes int) (int, error)
}

// Config wires an Orchestrator. A nil Collector disables collection and
// retention; a nil Warmer or zero WarmInterval disables warm-up.
type Config struct {
	Collector       Collector
	CollectInterval time.Duration
	CollectWindow   int
	Retention       time.Duration
	CleanupCron     string

	Warmer       Warmer
	WarmInterval time.Duration
	WarmSymbols  []string
	WarmWindow   int

	// Now defaults to time.Now and is used for cron scheduling.
	Now    func() time.Time
	Logger *slog.Logger
}

// Orchestrator manages the background loops.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every enabled loop and blocks until ctx is cancelled or a loop
// fails. A cancelled ctx is a clean shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("collector", o.cfg.Collector != nil),
		slog.Duration("collect_interval", o.cfg.CollectInterval),
		slog.String("cleanup_cron", o.cfg.CleanupCron),
		slog.Duration("warm_interval", o.cfg.WarmInterval),
	)

	if o.cfg.Collector != nil {
		if o.cfg.CollectInterval <= 0 {
			return fmt.Errorf("pipeline: collect interval must be positive")
		}
		if o.cfg.CleanupCron != "" {
			if err := ParseCron(o.cfg.CleanupCron); err != nil {
				return fmt.Errorf("pipeline: cleanup cron: %w", err)
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if o.cfg.Collector != nil {
		g.Go(func() error {
			err := o.runCollect(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("collector loop: %w", err)
		})

		if o.cfg.CleanupCron != "" {
			g.Go(func() error {
				err := o.runCleanupCron(ctx)
				if ctx.Err() != nil {
					return nil // clean shutdown
				}
				return fmt.Errorf("retention loop: %w", err)
			})
		}
	}

	if o.cfg.Warmer != nil && o.cfg.WarmInterval > 0 {
		g.Go(func() error {
			err := o.runWarm(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("warm-up loop: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// CollectOnce runs a single collection pass and logs the counts.
func (o *Orchestrator) CollectOnce(ctx context.Context) map[string]int {
	start := time.Now()
	counts := o.cfg.Collector.CollectAll(ctx, o.cfg.CollectWindow)
	total := 0
	for _, n := range counts {
		total += n
	}
	o.logger.InfoContext(ctx, "collection pass finished",
		slog.Int("symbols", len(counts)),
		slog.Int("trades", total),
		slog.Duration("elapsed", time.Since(start)),
	)
	return counts
}

// runCollect collects once immediately, then on every tick.
func (o *Orchestrator) runCollect(ctx context.Context) error {
	o.CollectOnce(ctx)

	ticker := time.NewTicker(o.cfg.CollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("collector loop stopped")
			return ctx.Err()
		case <-ticker.C:
			o.CollectOnce(ctx)
		}
	}
}

// runCleanupCron waits for each cron fire time and removes expired trades.
func (o *Orchestrator) runCleanupCron(ctx context.Context) error {
	for {
		next, err := nextCronTime(o.cfg.CleanupCron, o.cfg.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", o.cfg.CleanupCron, err)
		}

		wait := next.Sub(o.cfg.Now())
		o.logger.Debug("retention waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.logger.Info("retention loop stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := o.cfg.Collector.Cleanup(ctx, o.cfg.Retention); err != nil {
				o.logger.Error("cleanup failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runWarm refreshes the configured reports on every tick so API reads hit
// the cache.
func (o *Orchestrator) runWarm(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.WarmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("warm-up loop stopped")
			return ctx.Err()
		case <-ticker.C:
			n, err := o.cfg.Warmer.Refresh(ctx, o.cfg.WarmSymbols, o.cfg.WarmWindow)
			if err != nil {
				o.logger.Warn("warm-up failed", slog.String("error", err.Error()))
				continue
			}
			o.logger.Debug("reports warmed", slog.Int("count", n))
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/notify"
)

// SourceCache labels reports served from the report cache.
const SourceCache = "cache"

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultAlertMinScore = 0.6
	reportsConcurrency   = 4
)

// Detector builds a fresh report. detector.Aggregator satisfies it.
type Detector interface {
	Detect(ctx context.Context, symbol string, windowMinutes int, currentPrice *float64) (domain.TWAPReport, error)
}

// Alerter delivers event notifications. notify.Notifier satisfies it.
type Alerter interface {
	Enabled(event string) bool
	Notify(ctx context.Context, event, title, message string) error
}

// ReportObserver counts served reports. metrics.Metrics satisfies it.
type ReportObserver interface {
	ObserveReport(source string, report domain.TWAPReport)
}

// DetectorConfig wires a DetectorService. Detector and Cache are required.
type DetectorConfig struct {
	Detector Detector
	Cache    domain.ReportCache
	// Bus, Alerter, Archiver and Observer are optional.
	Bus      domain.SignalBus
	Alerter  Alerter
	Archiver domain.ReportArchiver
	Observer ReportObserver
	CacheTTL time.Duration
	// AlertMinScore is the lowest AvgAlgoScore that raises twap_detected.
	AlertMinScore float64
	Logger        *slog.Logger
}

// ReportOptions tunes a single Report call.
type ReportOptions struct {
	// Force skips the cache lookup. The fresh report still replaces the
	// cached one.
	Force bool
	// CurrentPrice overrides the last trade price. Forced implicitly, since a
	// cached report was built against another price.
	CurrentPrice *float64
}

// DetectorService serves TWAP reports with a short-lived cache in front of
// the aggregator.
type DetectorService struct {
	detector      Detector
	cache         domain.ReportCache
	bus           domain.SignalBus
	alerter       Alerter
	archiver      domain.ReportArchiver
	observer      ReportObserver
	cacheTTL      time.Duration
	alertMinScore float64
	logger        *slog.Logger
}

// NewDetectorService creates a DetectorService.
func NewDetectorService(cfg DetectorConfig) *DetectorService {
	s := &DetectorService{
		detector:      cfg.Detector,
		cache:         cfg.Cache,
		bus:           cfg.Bus,
		alerter:       cfg.Alerter,
		archiver:      cfg.Archiver,
		observer:      cfg.Observer,
		cacheTTL:      cfg.CacheTTL,
		alertMinScore: cfg.AlertMinScore,
		logger:        cfg.Logger,
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultCacheTTL
	}
	if s.alertMinScore <= 0 {
		s.alertMinScore = defaultAlertMinScore
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "detector_service"))
	return s
}

// Report returns the report for symbol and window, from the cache when a
// fresh one exists. Cache, bus, archive and alert failures are logged and
// never fail the call.
func (s *DetectorService) Report(ctx context.Context, symbol string, windowMinutes int, opts ReportOptions) (domain.TWAPReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.TWAPReport{}, fmt.Errorf("detector_service: report: empty symbol: %w", domain.ErrInvalidArgument)
	}
	if windowMinutes <= 0 {
		return domain.TWAPReport{}, fmt.Errorf("detector_service: report: window %d: %w", windowMinutes, domain.ErrInvalidArgument)
	}

	key := domain.ReportCacheKey(symbol, windowMinutes)
	if !opts.Force && opts.CurrentPrice == nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			if s.observer != nil {
				s.observer.ObserveReport(SourceCache, cached)
			}
			return cached, nil
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "cache get failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	report, err := s.detector.Detect(ctx, symbol, windowMinutes, opts.CurrentPrice)
	if err != nil {
		return domain.TWAPReport{}, fmt.Errorf("detector_service: report %s: %w", symbol, err)
	}

	if err := s.cache.Set(ctx, key, report, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, report)
	s.archive(ctx, report)
	s.alert(ctx, report)
	return report, nil
}

// Reports builds reports for several symbols concurrently. A symbol whose
// report fails is logged and left out of the map.
func (s *DetectorService) Reports(ctx context.Context, symbols []string, windowMinutes int) (map[string]domain.TWAPReport, error) {
	if windowMinutes <= 0 {
		return nil, fmt.Errorf("detector_service: reports: window %d: %w", windowMinutes, domain.ErrInvalidArgument)
	}
	return s.reports(ctx, symbols, windowMinutes, ReportOptions{}), nil
}

// Refresh rebuilds and re-caches the reports for symbols, ignoring cached
// entries. It returns the number of reports built.
func (s *DetectorService) Refresh(ctx context.Context, symbols []string, windowMinutes int) (int, error) {
	if windowMinutes <= 0 {
		return 0, fmt.Errorf("detector_service: refresh: window %d: %w", windowMinutes, domain.ErrInvalidArgument)
	}
	return len(s.reports(ctx, symbols, windowMinutes, ReportOptions{Force: true})), nil
}

// ClearCache drops every cached report.
func (s *DetectorService) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("detector_service: clear cache: %w", err)
	}
	s.logger.InfoContext(ctx, "report cache cleared")
	return nil
}

// ----- Internal helpers -----

func (s *DetectorService) reports(ctx context.Context, symbols []string, windowMinutes int, opts ReportOptions) map[string]domain.TWAPReport {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.TWAPReport, len(symbols))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportsConcurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			report, err := s.Report(gctx, sym, windowMinutes, opts)
			if err != nil {
				s.logger.WarnContext(gctx, "report failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			out[report.Symbol] = report
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *DetectorService) publish(ctx context.Context, report domain.TWAPReport) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal report failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ReportChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish report failed",
			slog.String("symbol", report.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (s *DetectorService) archive(ctx context.Context, report domain.TWAPReport) {
	if s.archiver == nil || !report.HasData() {
		return
	}
	if err := s.archiver.ArchiveReport(ctx, report); err != nil {
		s.logger.WarnContext(ctx, "archive report failed",
			slog.String("symbol", report.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// alert raises twap_detected for a directional report whose average score
// reaches the threshold.
func (s *DetectorService) alert(ctx context.Context, report domain.TWAPReport) {
	if !ShouldAlert(report, s.alertMinScore) {
		return
	}
	if s.alerter == nil || !s.alerter.Enabled(notify.EventTWAPDetected) {
		return
	}
	if err := s.alerter.Notify(ctx, notify.EventTWAPDetected, notify.ReportTitle(report), notify.FormatReport(report)); err != nil {
		s.logger.WarnContext(ctx, "alert failed",
			slog.String("symbol", report.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "twap alert sent",
		slog.String("symbol", report.Symbol),
		slog.String("direction", string(report.DominantDirection)),
		slog.Float64("avg_algo_score", report.AvgAlgoScore),
	)
}

// ShouldAlert reports whether report is directional with an average score of
// at least minScore.
func ShouldAlert(report domain.TWAPReport, minScore float64) bool {
	if !report.HasData() || report.DominantDirection == domain.DirectionNeutral {
		return false
	}
	return report.AvgAlgoScore >= minScore
}

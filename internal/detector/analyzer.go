// Package detector scores trade streams for TWAP-like execution and combines
// the per-exchange verdicts into a single report.
package detector

import (
	"cmp"
	"slices"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/stats"
)

// Sub-score indices into AnalyzerConfig.Weights.
const (
	scoreDominance = iota
	scoreSize
	scoreTiming
	scoreSmallTrade
	scoreCount
	numScores
)

// AnalyzerConfig holds the heuristic's thresholds and weights.
type AnalyzerConfig struct {
	// DirectionThreshold is the |imbalance| a window must strictly exceed to
	// be called BUY or SELL.
	DirectionThreshold float64
	// MinSubsetTrades is the fewest same-side trades worth scoring.
	MinSubsetTrades int
	// DominanceRatio is the share of all trades the subset must reach for
	// the dominance sub-score.
	DominanceRatio float64
	// SaturationCount is the subset size at which the count sub-score is 1.
	SaturationCount int
	// SmallTradeFactor scales mean/total in the small-trade sub-score.
	SmallTradeFactor float64
	// AlgoThreshold is the score at which the subset is classified as
	// algorithmic.
	AlgoThreshold float64
	// Weights for dominance, size, timing, small-trade and count, in order.
	Weights [numScores]float64
}

// DefaultAnalyzerConfig returns the production tuning.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		DirectionThreshold: 0.1,
		MinSubsetTrades:    5,
		DominanceRatio:     0.7,
		SaturationCount:    50,
		SmallTradeFactor:   10,
		AlgoThreshold:      0.5,
		Weights:            [numScores]float64{0.20, 0.25, 0.25, 0.15, 0.15},
	}
}

// Analyzer turns one exchange's trades into an ExchangeAnalysis. It holds no
// mutable state and is safe for concurrent use.
type Analyzer struct {
	cfg AnalyzerConfig
}

// NewAnalyzer creates an Analyzer with cfg.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze scores trades for one exchange. Volumes are priced at each trade's
// own print; the trailing reference price is accepted so callers can pass the
// window's quote through, but it does not enter the score.
func (a *Analyzer) Analyze(exchange string, trades []domain.Trade, _ float64) domain.ExchangeAnalysis {
	if len(trades) == 0 {
		return domain.ExchangeAnalysis{Exchange: exchange, Direction: domain.DirectionNeutral}
	}

	sorted := slices.Clone(trades)
	slices.SortStableFunc(sorted, func(x, y domain.Trade) int {
		return cmp.Compare(x.Time, y.Time)
	})

	var buyUSD, sellUSD float64
	buys := make([]domain.Trade, 0, len(sorted))
	sells := make([]domain.Trade, 0, len(sorted))
	for _, t := range sorted {
		if t.IsBuy() {
			buyUSD += t.NotionalUSD()
			buys = append(buys, t)
		} else {
			sellUSD += t.NotionalUSD()
			sells = append(sells, t)
		}
	}

	imbalance := Imbalance(buyUSD, sellUSD)
	out := domain.ExchangeAnalysis{
		Exchange:      exchange,
		Direction:     a.direction(imbalance),
		NetFlowUSD:    buyUSD - sellUSD,
		BuyVolumeUSD:  buyUSD,
		SellVolumeUSD: sellUSD,
		Imbalance:     imbalance,
		TotalTrades:   len(sorted),
	}

	subset := a.candidates(buys, sells)
	if subset == nil {
		return out
	}

	out.AlgoScore = a.Score(subset, len(sorted))
	if out.AlgoScore >= a.cfg.AlgoThreshold {
		for _, t := range subset {
			out.AlgoVolumeUSD += t.NotionalUSD()
		}
		out.AlgoTradeCount = len(subset)
	}
	return out
}

// Score combines the five sub-scores for subset, a time-ordered run of
// same-side trades drawn from total trades. The result is in [0, 1].
func (a *Analyzer) Score(subset []domain.Trade, total int) float64 {
	parts := a.subScores(subset, total)
	var score float64
	for i, p := range parts {
		score += p * a.cfg.Weights[i]
	}
	return stats.Clamp(score, 0, 1)
}

// Imbalance returns (buy-sell)/(buy+sell), or 0 when both are zero.
func Imbalance(buyUSD, sellUSD float64) float64 {
	total := buyUSD + sellUSD
	if total == 0 {
		return 0
	}
	return (buyUSD - sellUSD) / total
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (a *Analyzer) direction(imbalance float64) domain.Direction {
	switch {
	case imbalance > a.cfg.DirectionThreshold:
		return domain.DirectionBuy
	case imbalance < -a.cfg.DirectionThreshold:
		return domain.DirectionSell
	default:
		return domain.DirectionNeutral
	}
}

// candidates picks the majority side when it has enough trades. Buys win
// ties.
func (a *Analyzer) candidates(buys, sells []domain.Trade) []domain.Trade {
	switch {
	case len(buys) >= len(sells) && len(buys) >= a.cfg.MinSubsetTrades:
		return buys
	case len(sells) >= a.cfg.MinSubsetTrades:
		return sells
	default:
		return nil
	}
}

func (a *Analyzer) subScores(subset []domain.Trade, total int) [numScores]float64 {
	var s [numScores]float64
	n := len(subset)
	if n == 0 {
		return s
	}

	if float64(n) >= float64(total)*a.cfg.DominanceRatio {
		s[scoreDominance] = 1
	}

	qtys := make([]float64, n)
	for i, t := range subset {
		qtys[i] = t.Quantity
	}
	if n > 1 {
		s[scoreSize] = max(0, 1-stats.CV(qtys))
	}

	if n > 2 {
		intervals := make([]float64, n-1)
		for i := 1; i < n; i++ {
			intervals[i-1] = float64(subset[i].Time - subset[i-1].Time)
		}
		s[scoreTiming] = max(0, 1-stats.CV(intervals))
	}

	if sum := stats.Sum(qtys); sum > 0 {
		s[scoreSmallTrade] = min(1, a.cfg.SmallTradeFactor*stats.Mean(qtys)/sum)
	}

	if a.cfg.SaturationCount > 0 {
		s[scoreCount] = min(1, float64(n)/float64(a.cfg.SaturationCount))
	}
	return s
}

package domain

import "time"

// Direction is the directional verdict for an exchange or a whole report.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// ExchangeAnalysis is the verdict for one exchange over one window.
type ExchangeAnalysis struct {
	Exchange       string    `json:"exchange"`
	Direction      Direction `json:"direction"`
	AlgoScore      float64   `json:"algo_score"`
	AlgoVolumeUSD  float64   `json:"algo_volume_usd"`
	NetFlowUSD     float64   `json:"net_flow_usd"`
	BuyVolumeUSD   float64   `json:"buy_volume_usd"`
	SellVolumeUSD  float64   `json:"sell_volume_usd"`
	Imbalance      float64   `json:"imbalance"`
	TotalTrades    int       `json:"total_trades"`
	AlgoTradeCount int       `json:"algo_trade_count"`
}

// TWAPReport aggregates the per-exchange analyses for one symbol and window.
type TWAPReport struct {
	Symbol               string             `json:"symbol"`
	Timestamp            time.Time          `json:"timestamp"`
	WindowMinutes        int                `json:"window_minutes"`
	Exchanges            []ExchangeAnalysis `json:"exchanges"`
	TotalAlgoVolumeUSD   float64            `json:"total_algo_volume_usd"`
	TotalNetFlowUSD      float64            `json:"total_net_flow_usd"`
	DominantDirection    Direction          `json:"dominant_direction"`
	BuyExchanges         []string           `json:"buy_exchanges"`
	SellExchanges        []string           `json:"sell_exchanges"`
	AvgAlgoScore         float64            `json:"avg_algo_score"`
	SynchronizationScore float64            `json:"synchronization_score"`
}

// TotalVolumeUSD sums buy and sell volume across every exchange in the report.
func (r TWAPReport) TotalVolumeUSD() float64 {
	var total float64
	for _, ex := range r.Exchanges {
		total += ex.BuyVolumeUSD + ex.SellVolumeUSD
	}
	return total
}

// AlgoVolumePerHour extrapolates the algorithmic volume of the window to one
// hour. It returns 0 for a zero window.
func (r TWAPReport) AlgoVolumePerHour() float64 {
	if r.WindowMinutes <= 0 {
		return 0
	}
	return r.TotalAlgoVolumeUSD * 60 / float64(r.WindowMinutes)
}

// HasData reports whether at least one exchange contributed to the report.
func (r TWAPReport) HasData() bool {
	return len(r.Exchanges) > 0
}

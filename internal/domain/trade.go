package domain

import (
	"cmp"
	"slices"
)

// Trade is one normalized trade print. IsBuyerMaker is true when the resting
// order was the buy side, i.e. the aggressor was a seller.
type Trade struct {
	Time         int64   `json:"time"` // ms since epoch
	Price        float64 `json:"price"`
	Quantity     float64 `json:"qty"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
	Exchange     string  `json:"exchange"`
}

// NotionalUSD returns price times quantity.
func (t Trade) NotionalUSD() float64 {
	return t.Price * t.Quantity
}

// IsBuy reports whether the buyer removed liquidity.
func (t Trade) IsBuy() bool {
	return !t.IsBuyerMaker
}

// StoredTrade is a Trade as persisted by the collector, with the symbol and
// collection time it was saved under.
type StoredTrade struct {
	Trade
	ID          int64  `json:"id"`
	Symbol      string `json:"symbol"`
	CollectedAt int64  `json:"collected_at"` // ms since epoch
}

// FilterWindow returns the trades with time in [sinceMs, untilMs], sorted by
// time ascending. A non-positive untilMs leaves the upper bound open. The
// input slice is not modified.
func FilterWindow(trades []Trade, sinceMs, untilMs int64) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Time < sinceMs {
			continue
		}
		if untilMs > 0 && t.Time > untilMs {
			continue
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b Trade) int {
		return cmp.Compare(a.Time, b.Time)
	})
	return out
}

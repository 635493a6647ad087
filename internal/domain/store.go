package domain

import "context"

// TradeLookup is the read-only side of the trade store.
type TradeLookup interface {
	// FindByPeriod returns every stored trade for symbol with time in
	// [sinceMs, untilMs], ordered by time ascending.
	FindByPeriod(ctx context.Context, symbol string, sinceMs, untilMs int64) ([]Trade, error)
}

// TradeStore persists collected trades.
type TradeStore interface {
	TradeLookup
	FindByExchange(ctx context.Context, symbol, exchange string, sinceMs, untilMs int64) ([]Trade, error)
	// InsertBatch stores trades under symbol, skipping duplicates. It returns
	// the number of rows actually inserted.
	InsertBatch(ctx context.Context, symbol string, collectedAt int64, trades []Trade) (int64, error)
	DeleteCollectedBefore(ctx context.Context, cutoffMs int64) (int64, error)
	ListCollectedBefore(ctx context.Context, cutoffMs int64) ([]StoredTrade, error)
}

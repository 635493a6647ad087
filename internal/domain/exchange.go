package domain

import "context"

// ExchangeClient fetches normalized trades from one exchange. Implementations
// never surface transport errors; a failed call yields an empty slice.
type ExchangeClient interface {
	// Name returns the display name used in reports (e.g. "Binance").
	Name() string
	// FetchRecent makes a single best-effort call for up to limit trades with
	// time >= sinceMs.
	FetchRecent(ctx context.Context, symbol string, sinceMs int64, limit int) []Trade
	// FetchAll returns the trades in [sinceMs, untilMs], paginating where the
	// exchange supports it and degrading to one page where it does not.
	FetchAll(ctx context.Context, symbol string, sinceMs, untilMs int64) []Trade
}

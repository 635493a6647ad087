// Package binance implements domain.ExchangeClient over the Binance spot
// aggTrades endpoint, the only one of the supported venues that can page by
// time.
package binance

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/platform/httpx"
)

const (
	// Name is the exchange label used in reports.
	Name = "Binance"
	// DefaultBaseURL is the public spot REST root.
	DefaultBaseURL = "https://api.binance.com"

	aggTradesPath = "/api/v3/aggTrades"
	maxPageSize   = 1000
	// maxTrades bounds a single FetchAll so a runaway window cannot exhaust
	// memory.
	maxTrades = 100_000
	// maxRangeMs is the widest startTime..endTime span aggTrades accepts.
	maxRangeMs = int64(time.Hour/time.Millisecond) - 1
)

// Client fetches aggregated trades from Binance.
type Client struct {
	http   *httpx.Client
	logger *slog.Logger
}

// NewClient creates a Binance client on top of hc.
func NewClient(hc *httpx.Client, logger *slog.Logger) *Client {
	return &Client{
		http:   hc,
		logger: logger.With(slog.String("component", "binance")),
	}
}

// Name returns "Binance".
func (c *Client) Name() string { return Name }

// FetchRecent returns up to limit trades starting at sinceMs from a single
// request.
func (c *Client) FetchRecent(ctx context.Context, symbol string, sinceMs int64, limit int) []domain.Trade {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	page, err := c.page(ctx, symbol, sinceMs, 0, limit)
	if err != nil {
		c.logger.WarnContext(ctx, "fetch recent trades failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return nil
	}

	trades := c.convert(ctx, page, sinceMs, 0)
	c.logger.DebugContext(ctx, "fetched recent trades",
		slog.String("symbol", symbol),
		slog.Int("count", len(trades)),
	)
	return trades
}

// FetchAll pages through [sinceMs, untilMs], advancing the start to one
// millisecond past the last trade of each page. It stops on a short or empty
// page, and at maxTrades. A failed page ends the walk and whatever was
// collected so far is returned.
func (c *Client) FetchAll(ctx context.Context, symbol string, sinceMs, untilMs int64) []domain.Trade {
	var all []domain.Trade
	cursor := sinceMs

	for {
		page, err := c.page(ctx, symbol, cursor, untilMs, maxPageSize)
		if err != nil {
			c.logger.WarnContext(ctx, "fetch trades page failed",
				slog.String("symbol", symbol),
				slog.Int64("start_ms", cursor),
				slog.Int("collected", len(all)),
				slog.String("error", err.Error()),
			)
			return all
		}
		if len(page) == 0 {
			break
		}

		batch := c.convert(ctx, page, sinceMs, untilMs)
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)

		if len(all) >= maxTrades {
			all = all[:maxTrades]
			c.logger.WarnContext(ctx, "trade ceiling reached, returning partial window",
				slog.String("symbol", symbol),
				slog.Int("max_trades", maxTrades),
			)
			break
		}
		if len(page) < maxPageSize {
			break
		}
		cursor = batch[len(batch)-1].Time + 1
	}

	c.logger.DebugContext(ctx, "fetched trade window",
		slog.String("symbol", symbol),
		slog.Int("count", len(all)),
	)
	return all
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// page requests one aggTrades page. endTime is only sent when the span is
// short enough for Binance to accept it; otherwise the caller filters.
func (c *Client) page(ctx context.Context, symbol string, startMs, untilMs int64, limit int) ([]AggTrade, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("startTime", strconv.FormatInt(startMs, 10))
	params.Set("limit", strconv.Itoa(limit))
	if untilMs > 0 && untilMs-startMs <= maxRangeMs {
		params.Set("endTime", strconv.FormatInt(untilMs, 10))
	}

	var page []AggTrade
	if err := c.http.GetJSON(ctx, aggTradesPath, params, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// convert maps a page to domain trades inside [sinceMs, untilMs]. Pages are
// ascending, so the first trade past untilMs ends the scan.
func (c *Client) convert(ctx context.Context, page []AggTrade, sinceMs, untilMs int64) []domain.Trade {
	out := make([]domain.Trade, 0, len(page))
	for _, at := range page {
		if at.Time < sinceMs {
			continue
		}
		if untilMs > 0 && at.Time > untilMs {
			break
		}
		t, err := at.ToDomainTrade()
		if err != nil {
			c.logger.DebugContext(ctx, "skipping malformed trade",
				slog.Int64("agg_id", at.AggID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Compile-time interface check.
var _ domain.ExchangeClient = (*Client)(nil)

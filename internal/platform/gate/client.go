// Package gate implements domain.ExchangeClient over the Gate.io v4 spot
// trades endpoint, queried without time bounds for the latest page only.
package gate

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/platform/httpx"
)

const (
	// Name is the exchange label used in reports.
	Name = "Gate"
	// DefaultBaseURL is the public REST root.
	DefaultBaseURL = "https://api.gateio.ws"

	tradesPath  = "/api/v4/spot/trades"
	maxPageSize = 1000
)

// Client fetches recent spot trades from Gate.io.
type Client struct {
	http   *httpx.Client
	logger *slog.Logger
}

// NewClient creates a Gate client on top of hc.
func NewClient(hc *httpx.Client, logger *slog.Logger) *Client {
	return &Client{
		http:   hc,
		logger: logger.With(slog.String("component", "gate")),
	}
}

// Name returns "Gate".
func (c *Client) Name() string { return Name }

// FetchRecent returns the latest trades with time >= sinceMs, ascending.
func (c *Client) FetchRecent(ctx context.Context, symbol string, sinceMs int64, limit int) []domain.Trade {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	pair := CurrencyPair(symbol)

	params := url.Values{}
	params.Set("currency_pair", pair)
	params.Set("limit", strconv.Itoa(limit))

	var raw []Trade
	if err := c.http.GetJSON(ctx, tradesPath, params, &raw); err != nil {
		c.logger.WarnContext(ctx, "fetch recent trades failed",
			slog.String("symbol", symbol),
			slog.String("currency_pair", pair),
			slog.String("error", err.Error()),
		)
		return nil
	}

	trades := make([]domain.Trade, 0, len(raw))
	for _, gt := range raw {
		t, err := gt.ToDomainTrade()
		if err != nil {
			c.logger.DebugContext(ctx, "skipping malformed trade",
				slog.String("trade_id", gt.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		trades = append(trades, t)
	}

	out := domain.FilterWindow(trades, sinceMs, 0)
	c.logger.DebugContext(ctx, "fetched recent trades",
		slog.String("currency_pair", pair),
		slog.Int("received", len(raw)),
		slog.Int("count", len(out)),
	)
	return out
}

// FetchAll returns at most one page of trades in [sinceMs, untilMs].
func (c *Client) FetchAll(ctx context.Context, symbol string, sinceMs, untilMs int64) []domain.Trade {
	return domain.FilterWindow(c.FetchRecent(ctx, symbol, sinceMs, maxPageSize), sinceMs, untilMs)
}

// Compile-time interface check.
var _ domain.ExchangeClient = (*Client)(nil)

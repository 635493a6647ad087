// Package bybit implements domain.ExchangeClient over Bybit's v5 spot
// recent-trade endpoint. The endpoint has no time-range parameters, so
// FetchAll degrades to one page of the most recent trades.
package bybit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/platform/httpx"
)

const (
	// Name is the exchange label used in reports.
	Name = "Bybit"
	// DefaultBaseURL is the public REST root.
	DefaultBaseURL = "https://api.bybit.com"

	recentTradePath = "/v5/market/recent-trade"
	maxPageSize     = 1000
)

// Client fetches recent spot trades from Bybit.
type Client struct {
	http   *httpx.Client
	logger *slog.Logger
}

// NewClient creates a Bybit client on top of hc.
func NewClient(hc *httpx.Client, logger *slog.Logger) *Client {
	return &Client{
		http:   hc,
		logger: logger.With(slog.String("component", "bybit")),
	}
}

// Name returns "Bybit".
func (c *Client) Name() string { return Name }

// FetchRecent returns the latest trades with time >= sinceMs, ascending.
func (c *Client) FetchRecent(ctx context.Context, symbol string, sinceMs int64, limit int) []domain.Trade {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("limit", strconv.Itoa(limit))

	var resp RecentTradeResponse
	err := c.http.GetJSON(ctx, recentTradePath, params, &resp)
	if err == nil && resp.RetCode != 0 {
		err = fmt.Errorf("retCode=%d retMsg=%s", resp.RetCode, resp.RetMsg)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "fetch recent trades failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return nil
	}

	trades := make([]domain.Trade, 0, len(resp.Result.List))
	for _, rt := range resp.Result.List {
		t, err := rt.ToDomainTrade()
		if err != nil {
			c.logger.DebugContext(ctx, "skipping malformed trade",
				slog.String("exec_id", rt.ExecID),
				slog.String("error", err.Error()),
			)
			continue
		}
		trades = append(trades, t)
	}

	out := domain.FilterWindow(trades, sinceMs, 0)
	c.logger.DebugContext(ctx, "fetched recent trades",
		slog.String("symbol", symbol),
		slog.Int("received", len(resp.Result.List)),
		slog.Int("count", len(out)),
	)
	return out
}

// FetchAll returns at most one page of trades in [sinceMs, untilMs]. Windows
// busier than a single page are only partially covered.
func (c *Client) FetchAll(ctx context.Context, symbol string, sinceMs, untilMs int64) []domain.Trade {
	return domain.FilterWindow(c.FetchRecent(ctx, symbol, sinceMs, maxPageSize), sinceMs, untilMs)
}

// Compile-time interface check.
var _ domain.ExchangeClient = (*Client)(nil)

// Package okx implements domain.ExchangeClient over OKX's public market
// trades endpoint. It serves at most 500 of the latest fills and cannot be
// queried by time, so FetchAll returns one page.
package okx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/twapwatch/internal/domain"
	"github.com/alanyoungcy/twapwatch/internal/platform/httpx"
)

const (
	// Name is the exchange label used in reports.
	Name = "OKX"
	// DefaultBaseURL is the public REST root.
	DefaultBaseURL = "https://www.okx.com"

	tradesPath  = "/api/v5/market/trades"
	maxPageSize = 500
)

// Client fetches recent spot trades from OKX.
type Client struct {
	http   *httpx.Client
	logger *slog.Logger
}

// NewClient creates an OKX client on top of hc.
func NewClient(hc *httpx.Client, logger *slog.Logger) *Client {
	return &Client{
		http:   hc,
		logger: logger.With(slog.String("component", "okx")),
	}
}

// Name returns "OKX".
func (c *Client) Name() string { return Name }

// FetchRecent returns the latest trades with time >= sinceMs, ascending.
func (c *Client) FetchRecent(ctx context.Context, symbol string, sinceMs int64, limit int) []domain.Trade {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	instID := InstID(symbol)

	params := url.Values{}
	params.Set("instId", instID)
	params.Set("limit", strconv.Itoa(limit))

	var resp TradesResponse
	err := c.http.GetJSON(ctx, tradesPath, params, &resp)
	if err == nil && resp.Code != "0" {
		err = fmt.Errorf("code=%s msg=%s", resp.Code, resp.Msg)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "fetch recent trades failed",
			slog.String("symbol", symbol),
			slog.String("inst_id", instID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	trades := make([]domain.Trade, 0, len(resp.Data))
	for _, raw := range resp.Data {
		t, err := raw.ToDomainTrade()
		if err != nil {
			c.logger.DebugContext(ctx, "skipping malformed trade",
				slog.String("trade_id", raw.TradeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		trades = append(trades, t)
	}

	out := domain.FilterWindow(trades, sinceMs, 0)
	c.logger.DebugContext(ctx, "fetched recent trades",
		slog.String("inst_id", instID),
		slog.Int("received", len(resp.Data)),
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

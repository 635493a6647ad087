package bybit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/platform/httpx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	hc := httpx.New(httpx.Config{
		Name:    Name,
		BaseURL: srv.URL,
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})
	return NewClient(hc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const recentBody = `{
	"retCode": 0,
	"retMsg": "OK",
	"result": {
		"category": "spot",
		"list": [
			{"execId":"3","symbol":"BTCUSDT","price":"30002","size":"0.2","side":"Sell","time":"1700000003000","isBlockTrade":false},
			{"execId":"2","symbol":"BTCUSDT","price":"30001","size":"0.1","side":"Buy","time":"1700000002000","isBlockTrade":false},
			{"execId":"1","symbol":"BTCUSDT","price":"30000","size":"0.3","side":"Buy","time":"1700000001000","isBlockTrade":false}
		]
	}
}`

func TestFetchRecentParsesAndSorts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/recent-trade", r.URL.Path)
		assert.Equal(t, "spot", r.URL.Query().Get("category"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		w.Write([]byte(recentBody))
	})

	trades := c.FetchRecent(context.Background(), "BTCUSDT", 0, 5000)
	require.Len(t, trades, 3)
	assert.Equal(t, int64(1700000001000), trades[0].Time)
	assert.Equal(t, int64(1700000003000), trades[2].Time)
	assert.False(t, trades[0].IsBuyerMaker, "taker Buy")
	assert.True(t, trades[2].IsBuyerMaker, "taker Sell")
	assert.Equal(t, Name, trades[2].Exchange)
}

func TestFetchAllFiltersToWindow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(recentBody))
	})

	trades := c.FetchAll(context.Background(), "BTCUSDT", 1700000002000, 1700000002500)
	require.Len(t, trades, 1)
	assert.InDelta(t, 30001.0, trades[0].Price, 1e-9)
}

func TestFetchRecentRejectsErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{}}`))
	})

	assert.Empty(t, c.FetchRecent(context.Background(), "XXX", 0, 10))
}

func TestFetchRecentEmptyOnServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.Empty(t, c.FetchAll(context.Background(), "BTCUSDT", 0, 0))
}

package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/cache/memory"
	"github.com/alanyoungcy/twapwatch/internal/domain"
)

func startHub(t *testing.T) (*Hub, *memory.Bus, string) {
	t.Helper()
	bus := memory.NewBus()
	hub := NewHub(bus, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func publish(t *testing.T, bus *memory.Bus, symbol string) {
	t.Helper()
	data, err := json.Marshal(domain.TWAPReport{Symbol: symbol, WindowMinutes: 15})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), domain.ReportChannel, data))
}

func readReport(t *testing.T, conn *websocket.Conn) domain.TWAPReport {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var probe map[string]any
		require.NoError(t, json.Unmarshal(msg, &probe))
		if probe["type"] == "subscribed" {
			continue
		}
		var r domain.TWAPReport
		require.NoError(t, json.Unmarshal(msg, &r))
		return r
	}
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHubBroadcastsToAllByDefault(t *testing.T) {
	hub, bus, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	publish(t, bus, "ETHUSDT")
	assert.Equal(t, "ETHUSDT", readReport(t, conn).Symbol)
}

func TestHubFiltersBySubscription(t *testing.T) {
	hub, bus, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "subscribe", "symbols": []string{"btcusdt"}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack ackMsg
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, []string{"BTCUSDT"}, ack.Symbols)

	publish(t, bus, "ETHUSDT")
	publish(t, bus, "BTCUSDT")
	assert.Equal(t, "BTCUSDT", readReport(t, conn).Symbol)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitClients(t, hub, 0)
}

func TestClientApply(t *testing.T) {
	c := &client{symbols: make(map[string]bool)}
	assert.True(t, c.wants("BTCUSDT"))

	_, ok := c.apply(subscribeMsg{Action: "subscribe", Symbols: []string{" solusdt ", "XRPUSDT"}})
	require.True(t, ok)
	assert.True(t, c.wants("SOLUSDT"))
	assert.False(t, c.wants("BTCUSDT"))

	_, ok = c.apply(subscribeMsg{Action: "unsubscribe", Symbols: []string{"solusdt"}})
	require.True(t, ok)
	assert.False(t, c.wants("SOLUSDT"))
	assert.True(t, c.wants("XRPUSDT"))

	// An empty subscribe resets to every symbol.
	_, ok = c.apply(subscribeMsg{Action: "subscribe"})
	require.True(t, ok)
	assert.True(t, c.wants("BTCUSDT"))

	_, ok = c.apply(subscribeMsg{Action: "dance"})
	assert.False(t, ok)
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"http://localhost:3000"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))
}

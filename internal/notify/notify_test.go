package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

type recordingSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_EventFilter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventTWAPDetected, " "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventTWAPDetected, "a", ""))
	require.NoError(t, n.Notify(context.Background(), EventCollectError, "b", ""))
	require.NoError(t, n.NotifyAll(context.Background(), "c", ""))

	assert.Equal(t, []string{"a", "c"}, s.titles)
	assert.True(t, n.Enabled(EventTWAPDetected))
	assert.False(t, n.Enabled(EventCollectError))
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "x", ""))
	assert.Equal(t, []string{"x"}, s.titles)
	assert.False(t, NewNotifier(nil, nil, discardLogger()).Enabled("anything"))
}

func TestNotifier_CollectsFailures(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestWebhookSender_Signs(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "s3cret")
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	require.NoError(t, s.Send(context.Background(), "title", "body"))

	assert.Equal(t, Sign([]byte("s3cret"), gotBody), gotSig)
	var p webhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &p))
	assert.Equal(t, webhookPayload{Title: "title", Message: "body", Timestamp: 1700000000}, p)
}

func TestWebhookSender_UnsignedAndErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "").Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestTelegramSender_Payload(t *testing.T) {
	var path string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Title", "msg"))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "*Title*\nmsg", payload["text"])
}

func TestDiscordSender_Payload(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Title", "msg"))
	assert.Equal(t, "**Title**\nmsg", payload["content"])
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0, "$0.00"},
		{999.994, "$999.99"},
		{1_000, "$1.00K"},
		{12_500, "$12.50K"},
		{1_250_000, "$1.25M"},
		{-3_400, "-$3.40K"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatUSD(tt.in))
	}
}

func TestVolumeCategory(t *testing.T) {
	assert.Equal(t, "high", VolumeCategory(1_000_000))
	assert.Equal(t, "medium", VolumeCategory(500_000))
	assert.Equal(t, "low", VolumeCategory(1_000))
	assert.Equal(t, "very low", VolumeCategory(999))
}

func TestFormatReport(t *testing.T) {
	r := domain.TWAPReport{
		Symbol:        "BTCUSDT",
		WindowMinutes: 30,
		Exchanges: []domain.ExchangeAnalysis{
			{Exchange: "Binance", BuyVolumeUSD: 600_000, SellVolumeUSD: 200_000},
			{Exchange: "OKX", BuyVolumeUSD: 150_000, SellVolumeUSD: 50_000},
		},
		TotalAlgoVolumeUSD:   400_000,
		TotalNetFlowUSD:      500_000,
		DominantDirection:    domain.DirectionBuy,
		BuyExchanges:         []string{"Binance", "OKX"},
		SellExchanges:        []string{},
		AvgAlgoScore:         0.72,
		SynchronizationScore: 1,
	}

	out := FormatReport(r)
	assert.Equal(t, "TWAP buy on BTCUSDT (30m)", ReportTitle(r))
	assert.Contains(t, out, "Direction: BUY")
	assert.Contains(t, out, "Buying: Binance, OKX")
	assert.NotContains(t, out, "Selling:")
	assert.Contains(t, out, "Algo volume: $400.00K ($800.00K/h, medium)")
	assert.Contains(t, out, "Net flow: $500.00K")
	assert.Contains(t, out, "Total volume: $1.00M (buy 75.0% | sell 25.0%)")
	assert.Contains(t, out, "Avg score: 0.72 | Sync: 100%")
}

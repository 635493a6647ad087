package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	multipart []string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.mu.Lock()
	m.multipart = append(m.multipart, path)
	m.mu.Unlock()
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type fakeTradeSource struct {
	trades []domain.StoredTrade
	err    error
	cutoff int64
}

func (f *fakeTradeSource) ListCollectedBefore(_ context.Context, cutoffMs int64) ([]domain.StoredTrade, error) {
	f.cutoff = cutoffMs
	return f.trades, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchivePaths(t *testing.T) {
	cutoff := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "archive/trades/2024-03-09/1710028740000.jsonl", TradeArchivePath(cutoff))

	ts := time.Date(2024, 3, 10, 1, 2, 3, 0, time.FixedZone("X", 5*3600))
	assert.Equal(t, "archive/reports/BTCUSDT/2024-03-09/1710014523.json", ReportArchivePath("BTCUSDT", ts))
}

func TestArchiveTrades_WritesJSONL(t *testing.T) {
	blobs := newMemBlobs()
	src := &fakeTradeSource{trades: []domain.StoredTrade{
		{ID: 1, Symbol: "BTCUSDT", CollectedAt: 10, Trade: domain.Trade{Time: 1, Price: 100, Quantity: 1, Exchange: "Binance"}},
		{ID: 2, Symbol: "BTCUSDT", CollectedAt: 10, Trade: domain.Trade{Time: 2, Price: 101, Quantity: 2, IsBuyerMaker: true, Exchange: "OKX"}},
	}}
	a := NewArchiver(blobs, blobs, src, discardLogger())

	n, err := a.ArchiveTrades(context.Background(), 1_700_000_000_000)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 1_700_000_000_000, src.cutoff)

	data, ok := blobs.objects[TradeArchivePath(1_700_000_000_000)]
	require.True(t, ok)
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []domain.StoredTrade
	for sc.Scan() {
		var st domain.StoredTrade
		require.NoError(t, json.Unmarshal(sc.Bytes(), &st))
		lines = append(lines, st)
	}
	assert.Equal(t, src.trades, lines)
	assert.Empty(t, blobs.multipart)
}

func TestArchiveTrades_NothingToDo(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, &fakeTradeSource{}, discardLogger())

	n, err := a.ArchiveTrades(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blobs.objects)
}

func TestArchiveTrades_SourceError(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, &fakeTradeSource{err: errors.New("db down")}, discardLogger())

	_, err := a.ArchiveTrades(context.Background(), 1)
	assert.ErrorContains(t, err, "db down")
}

func TestArchiveReport_AndHistory(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, nil, discardLogger())

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	later := domain.TWAPReport{Symbol: "ETHUSDT", Timestamp: day.Add(2 * time.Hour), WindowMinutes: 15}
	earlier := domain.TWAPReport{Symbol: "ETHUSDT", Timestamp: day.Add(time.Hour), WindowMinutes: 60}
	require.NoError(t, a.ArchiveReport(ctx, later))
	require.NoError(t, a.ArchiveReport(ctx, earlier))

	// Same second again is a no-op.
	dup := later
	dup.WindowMinutes = 5
	require.NoError(t, a.ArchiveReport(ctx, dup))

	got, err := a.History(ctx, "ETHUSDT", day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 60, got[0].WindowMinutes)
	assert.Equal(t, 15, got[1].WindowMinutes)
	assert.True(t, got[0].Timestamp.Equal(earlier.Timestamp))

	none, err := a.History(ctx, "BTCUSDT", day)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}

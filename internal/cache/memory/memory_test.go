package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestReportCache_TTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewReportCache(clock.Now)
	key := domain.ReportCacheKey("BTCUSDT", 15)
	report := domain.TWAPReport{Symbol: "BTCUSDT", WindowMinutes: 15}

	_, err := c.Get(ctx, key)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.Set(ctx, key, report, 5*time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, report, got)
	assert.Equal(t, 1, c.Len())

	clock.Advance(5*time.Minute - time.Second)
	_, err = c.Get(ctx, key)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, c.Len())
}

func TestReportCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := NewReportCache(nil)
	require.NoError(t, c.Set(ctx, "a", domain.TWAPReport{}, time.Minute))
	require.NoError(t, c.Set(ctx, "b", domain.TWAPReport{}, time.Minute))

	require.NoError(t, c.Clear(ctx))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, c.Len())
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	lm := NewLockManager(clock.Now)

	unlock, err := lm.Acquire(ctx, "collect:BTCUSDT", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "collect:BTCUSDT", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = lm.Acquire(ctx, "collect:ETHUSDT", time.Minute)
	assert.NoError(t, err)

	unlock()
	unlock()
	second, err := lm.Acquire(ctx, "collect:BTCUSDT", time.Minute)
	require.NoError(t, err)

	// An expired holder no longer blocks, and its stale unlock is ignored.
	clock.Advance(2 * time.Minute)
	_, err = lm.Acquire(ctx, "collect:BTCUSDT", time.Minute)
	require.NoError(t, err)
	second()
	_, err = lm.Acquire(ctx, "collect:BTCUSDT", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rl := NewRateLimiter(clock.Now)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
		clock.Advance(10 * time.Second)
	}
	ok, _ := rl.Allow(ctx, "ip", 3, time.Minute)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "other", 3, time.Minute)
	assert.True(t, ok)

	// The first hit leaves the window after a minute.
	clock.Advance(31 * time.Second)
	ok, _ = rl.Allow(ctx, "ip", 3, time.Minute)
	assert.True(t, ok)
}

func TestBus_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus()

	ch, err := b.Subscribe(ctx, domain.ReportChannel)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, domain.ReportChannel, []byte("hello")))
	require.NoError(t, b.Publish(ctx, "elsewhere", []byte("ignored")))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct {
	collects atomic.Int32
	cleanups atomic.Int32
	window   atomic.Int32
}

func (f *fakeCollector) CollectAll(_ context.Context, window int) map[string]int {
	f.collects.Add(1)
	f.window.Store(int32(window))
	return map[string]int{"BTCUSDT": 3}
}

func (f *fakeCollector) Cleanup(context.Context, time.Duration) (int64, error) {
	f.cleanups.Add(1)
	return 0, nil
}

type fakeWarmer struct {
	refreshes atomic.Int32
}

func (f *fakeWarmer) Refresh(context.Context, []string, int) (int, error) {
	f.refreshes.Add(1)
	return 1, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCollectsOnStartupAndTick(t *testing.T) {
	col := &fakeCollector{}
	o := NewOrchestrator(Config{
		Collector:       col,
		CollectInterval: 20 * time.Millisecond,
		CollectWindow:   60,
		Logger:          quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return col.collects.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, int32(60), col.window.Load())
}

func TestRunWarmLoop(t *testing.T) {
	w := &fakeWarmer{}
	o := NewOrchestrator(Config{
		Warmer:       w,
		WarmInterval: 10 * time.Millisecond,
		WarmSymbols:  []string{"BTCUSDT"},
		WarmWindow:   15,
		Logger:       quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return w.refreshes.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunCleanupCronFires(t *testing.T) {
	col := &fakeCollector{}
	// Just before a minute boundary, so the first fire is imminent.
	start := time.Now().Truncate(time.Minute).Add(time.Minute - 30*time.Millisecond)
	offset := time.Until(start)
	o := NewOrchestrator(Config{
		Collector:       col,
		CollectInterval: time.Hour,
		CleanupCron:     "* * * * *",
		Now:             func() time.Time { return time.Now().Add(offset) },
		Logger:          quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return col.cleanups.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunRejectsBadConfig(t *testing.T) {
	o := NewOrchestrator(Config{
		Collector:       &fakeCollector{},
		CollectInterval: time.Hour,
		CleanupCron:     "nope",
		Logger:          quietLogger(),
	})
	assert.Error(t, o.Run(context.Background()))

	o = NewOrchestrator(Config{Collector: &fakeCollector{}, Logger: quietLogger()})
	assert.Error(t, o.Run(context.Background()))
}

func TestRunNothingEnabledReturns(t *testing.T) {
	o := NewOrchestrator(Config{Logger: quietLogger()})
	assert.NoError(t, o.Run(context.Background()))
}

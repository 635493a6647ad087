package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	p := RetryPolicy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
}

func TestRetryable(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", errors.New("connection reset"), true},
		{"429", &StatusError{Code: http.StatusTooManyRequests}, true},
		{"500", &StatusError{Code: 500}, true},
		{"502", &StatusError{Code: 502}, true},
		{"503", &StatusError{Code: 503}, true},
		{"504", &StatusError{Code: 504}, true},
		{"400", &StatusError{Code: 400}, false},
		{"404", &StatusError{Code: 404}, false},
		{"501", &StatusError{Code: 501}, false},
		{"canceled", context.Canceled, false},
		{"breaker open", gobreaker.ErrOpenState, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Retryable(tt.err))
		})
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := DefaultRetryPolicy()
	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), sleep, nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, waits)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	p := DefaultRetryPolicy()
	calls, retries := 0, 0
	err := p.Do(context.Background(), noSleep, func(int, error) { retries++ }, func(context.Context) error {
		calls++
		return &StatusError{Code: http.StatusTooManyRequests}
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, retries)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	p := DefaultRetryPolicy()
	calls := 0
	err := p.Do(context.Background(), noSleep, nil, func(context.Context) error {
		calls++
		return &StatusError{Code: http.StatusBadRequest, Body: "bad symbol"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
}

func TestDoStopsWhenContextCancelledDuringWait(t *testing.T) {
	p := DefaultRetryPolicy()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, ContextSleep, nil, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transport")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestStatusErrorMapsToSentinels(t *testing.T) {
	assert.ErrorIs(t, &StatusError{Code: 404}, domain.ErrNotFound)
	assert.ErrorIs(t, &StatusError{Code: 401}, domain.ErrUnauthorized)
	assert.ErrorIs(t, &StatusError{Code: 403}, domain.ErrUnauthorized)
	assert.ErrorIs(t, &StatusError{Code: 429}, domain.ErrRateLimited)
	assert.NotErrorIs(t, &StatusError{Code: 500}, domain.ErrNotFound)
}

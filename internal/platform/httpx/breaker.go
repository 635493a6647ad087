package httpx

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// newBreaker trips after 3 consecutive failed calls, or when more than 5% of
// at least 20 calls in the interval failed. A call is one Get including its
// retries. Non-retryable HTTP errors (a 400 for a bad symbol, say) and caller
// cancellation do not count against the exchange.
func newBreaker(name string, policy RetryPolicy) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	st.IsSuccessful = func(err error) bool {
		if err == nil || errors.Is(err, context.Canceled) {
			return true
		}
		var se *StatusError
		if errors.As(err, &se) {
			return !policy.RetryableStatus[se.Code]
		}
		return false
	}
	return gobreaker.NewCircuitBreaker(st)
}

package domain

import (
	"context"
	"strconv"
	"time"
)

// ReportCache stores finished reports for a short TTL.
type ReportCache interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) (TWAPReport, error)
	Set(ctx context.Context, key string, report TWAPReport, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub messaging.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// ReportChannel is the bus channel finished reports are published on.
const ReportChannel = "twap:reports"

// reportKeyPrefix namespaces report cache keys.
const reportKeyPrefix = "twap:report:"

// ReportCacheKey returns the cache key for symbol and window.
func ReportCacheKey(symbol string, windowMinutes int) string {
	return reportKeyPrefix + symbol + ":" + strconv.Itoa(windowMinutes)
}

// ReportKeyPrefix returns the prefix shared by every ReportCacheKey.
func ReportKeyPrefix() string {
	return reportKeyPrefix
}

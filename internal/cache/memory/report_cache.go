// Package memory provides in-process implementations of the domain cache,
// lock, rate-limit and bus interfaces, used when Redis is not configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

type entry struct {
	report    domain.TWAPReport
	expiresAt time.Time
}

// ReportCache is a mutex-guarded map with per-entry expiry.
type ReportCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewReportCache creates an empty cache. A nil now uses time.Now.
func NewReportCache(now func() time.Time) *ReportCache {
	if now == nil {
		now = time.Now
	}
	return &ReportCache{entries: make(map[string]entry), now: now}
}

// Get returns domain.ErrNotFound on a miss. Expired entries are evicted on
// read.
func (c *ReportCache) Get(_ context.Context, key string) (domain.TWAPReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.TWAPReport{}, domain.ErrNotFound
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return domain.TWAPReport{}, domain.ErrNotFound
	}
	return e.report, nil
}

// Set stores report for ttl. A non-positive ttl removes the key.
func (c *ReportCache) Set(_ context.Context, key string, report domain.TWAPReport, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	c.entries[key] = entry{report: report, expiresAt: c.now().Add(ttl)}
	return nil
}

// Clear drops every entry.
func (c *ReportCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return nil
}

// Len returns the number of live entries.
func (c *ReportCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

var _ domain.ReportCache = (*ReportCache)(nil)

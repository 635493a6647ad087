package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// scanBatch is the COUNT hint for SCAN during Clear.
const scanBatch = 200

// ReportCache implements domain.ReportCache with one JSON string per key and
// a native Redis TTL.
type ReportCache struct {
	rdb *redis.Client
}

// NewReportCache creates a ReportCache backed by the given Client.
func NewReportCache(c *Client) *ReportCache {
	return &ReportCache{rdb: c.Underlying()}
}

// Get returns domain.ErrNotFound when the key is absent or has expired.
func (rc *ReportCache) Get(ctx context.Context, key string) (domain.TWAPReport, error) {
	data, err := rc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TWAPReport{}, domain.ErrNotFound
		}
		return domain.TWAPReport{}, fmt.Errorf("redis: get report %s: %w", key, err)
	}

	var report domain.TWAPReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.TWAPReport{}, fmt.Errorf("redis: unmarshal report %s: %w", key, err)
	}
	return report, nil
}

// Set stores report under key for ttl.
func (rc *ReportCache) Set(ctx context.Context, key string, report domain.TWAPReport, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal report %s: %w", key, err)
	}
	if err := rc.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set report %s: %w", key, err)
	}
	return nil
}

// Clear deletes every report key. Keys are found with SCAN so the server is
// never blocked by KEYS.
func (rc *ReportCache) Clear(ctx context.Context) error {
	iter := rc.rdb.Scan(ctx, 0, domain.ReportKeyPrefix()+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := rc.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis: clear reports: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan reports: %w", err)
	}
	if len(batch) > 0 {
		if err := rc.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis: clear reports: %w", err)
		}
	}
	return nil
}

var _ domain.ReportCache = (*ReportCache)(nil)

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// LockManager is a process-local domain.LockManager. Locks expire after their
// ttl like the Redis version.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]uint64
	seq   uint64
	now   func() time.Time
	until map[string]time.Time
}

// NewLockManager creates a LockManager. A nil now uses time.Now.
func NewLockManager(now func() time.Time) *LockManager {
	if now == nil {
		now = time.Now
	}
	return &LockManager{
		held:  make(map[string]uint64),
		until: make(map[string]time.Time),
		now:   now,
	}
}

// Acquire returns domain.ErrLockHeld while another unexpired holder exists.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.held[key]; ok && lm.now().Before(lm.until[key]) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	lm.seq++
	token := lm.seq
	lm.held[key] = token
	lm.until[key] = lm.now().Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.held[key] == token {
				delete(lm.held, key)
				delete(lm.until, key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)

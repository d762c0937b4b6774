package session

import (
	"context"
	"sync"
	"time"

	"github.com/mj1618/mobile-mcp/internal/index"
)

// snapshotCache holds the last indexed snapshot for a short TTL so that
// read-only tools called back to back share one uiautomator dump.
type snapshotCache struct {
	mu        sync.Mutex
	idx       *index.Index
	timestamp time.Time
	ttl       time.Duration
}

// newSnapshotCache creates a cache. A ttl of 0 disables caching.
func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{ttl: ttl}
}

// get returns the cached index if within TTL, otherwise captures a fresh one.
func (c *snapshotCache) get(ctx context.Context, capture func(context.Context) (*index.Index, error)) (*index.Index, error) {
	if c.ttl == 0 {
		return capture(ctx)
	}

	c.mu.Lock()
	if c.idx != nil && time.Since(c.timestamp) < c.ttl {
		idx := c.idx
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	idx, err := capture(ctx)
	if err != nil {
		return nil, err
	}
	c.put(idx)
	return idx, nil
}

// put stores a snapshot taken elsewhere, such as the verifier's last sample.
func (c *snapshotCache) put(idx *index.Index) {
	if c.ttl == 0 || idx == nil {
		return
	}
	c.mu.Lock()
	c.idx, c.timestamp = idx, time.Now()
	c.mu.Unlock()
}

// invalidate drops the cached snapshot.
func (c *snapshotCache) invalidate() {
	c.mu.Lock()
	c.idx = nil
	c.mu.Unlock()
}

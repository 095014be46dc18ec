package cache

import (
	"sync/atomic"
	"time"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// HybridCache combines a local LRU cache (L1) and Redis (L2).
// L1 serves hot decisions, L2 shares decisions across engine instances.
type HybridCache struct {
	l1Local   *LRU
	l2Redis   *RedisCache
	l2Enabled bool

	counters
	l1Hits   uint64
	l2Hits   uint64
	l2Misses uint64
}

// HybridCacheConfig contains configuration for hybrid cache
type HybridCacheConfig struct {
	// L1 (Local) cache settings
	L1Capacity int
	L1TTL      time.Duration

	// L2 (Redis) cache settings
	L2Config *RedisConfig

	// If false, L2 is disabled and only L1 is used
	L2Enabled bool
}

// NewHybridCache creates a new hybrid cache. When Redis is unreachable the
// cache runs with L1 only.
func NewHybridCache(config *HybridCacheConfig) (*HybridCache, error) {
	if config == nil {
		config = &HybridCacheConfig{
			L1Capacity: 10000,
			L1TTL:      1 * time.Minute,
			L2Enabled:  true,
			L2Config:   DefaultRedisConfig(),
		}
	}

	var l2 *RedisCache
	if config.L2Enabled {
		var err error
		l2, err = NewRedisCache(config.L2Config)
		if err != nil {
			l2 = nil
		}
	}

	return newHybrid(NewLRU(config.L1Capacity, config.L1TTL), l2), nil
}

func newHybrid(l1 *LRU, l2 *RedisCache) *HybridCache {
	return &HybridCache{
		l1Local:   l1,
		l2Redis:   l2,
		l2Enabled: l2 != nil,
	}
}

// L2Enabled reports whether Redis is in use
func (c *HybridCache) L2Enabled() bool {
	return c.l2Enabled
}

// Get checks L1, then L2, promoting L2 hits into L1
func (c *HybridCache) Get(key string) (*types.EvaluationResult, bool) {
	if value, ok := c.l1Local.Get(key); ok {
		c.hit()
		atomic.AddUint64(&c.l1Hits, 1)
		return value, true
	}

	if c.l2Enabled {
		if value, ok := c.l2Redis.Get(key); ok {
			c.l1Local.Set(key, value)
			c.hit()
			atomic.AddUint64(&c.l2Hits, 1)
			return value, true
		}
		atomic.AddUint64(&c.l2Misses, 1)
	}

	c.miss()
	return nil, false
}

// Set writes to L1 and L2 (write-through)
func (c *HybridCache) Set(key string, value *types.EvaluationResult) {
	c.l1Local.Set(key, value)
	if c.l2Enabled {
		c.l2Redis.Set(key, value)
	}
}

// Delete removes a key from both L1 and L2
func (c *HybridCache) Delete(key string) {
	c.l1Local.Delete(key)
	if c.l2Enabled {
		c.l2Redis.Delete(key)
	}
}

// Clear removes all entries from both caches
func (c *HybridCache) Clear() {
	c.l1Local.Clear()
	if c.l2Enabled {
		c.l2Redis.Clear()
	}
}

// Stats returns combined cache statistics. Size is the L1 size.
func (c *HybridCache) Stats() Stats {
	return c.stats(c.l1Local.Stats().Size)
}

// LayerHits returns hits served by L1 and by L2
func (c *HybridCache) LayerHits() (l1, l2 uint64) {
	return atomic.LoadUint64(&c.l1Hits), atomic.LoadUint64(&c.l2Hits)
}

// Close closes the hybrid cache and associated resources
func (c *HybridCache) Close() error {
	if c.l2Enabled {
		return c.l2Redis.Close()
	}
	return nil
}

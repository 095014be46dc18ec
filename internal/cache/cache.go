// Package cache stores evaluation decisions keyed by rule set generation and
// request context
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// Cache stores evaluation results by decision key
type Cache interface {
	Get(key string) (*types.EvaluationResult, bool)
	Set(key string, value *types.EvaluationResult)
	Delete(key string)
	Clear()
	Stats() Stats
}

// Stats contains cache statistics
type Stats struct {
	Size    int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// counters tracks hits and misses for a backend
type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (c *counters) hit()  { c.hits.Add(1) }
func (c *counters) miss() { c.misses.Add(1) }

func (c *counters) stats(size int) Stats {
	s := Stats{Size: size, Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Type selects a cache implementation
type Type string

const (
	// TypeLRU uses the local LRU cache
	TypeLRU Type = "lru"
	// TypeRistretto uses a local ristretto cache
	TypeRistretto Type = "ristretto"
	// TypeRedis uses only Redis
	TypeRedis Type = "redis"
	// TypeHybrid uses a local LRU in front of Redis
	TypeHybrid Type = "hybrid"
)

// Config configures the decision cache
type Config struct {
	Type     Type          `yaml:"type"`
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
	Redis    *RedisConfig  `yaml:"redis"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Type:     TypeLRU,
		Capacity: 10000,
		TTL:      5 * time.Minute,
	}
}

// Validate validates the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.Type == "" {
		c.Type = TypeLRU
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}

	switch c.Type {
	case TypeLRU, TypeRistretto:
	case TypeRedis, TypeHybrid:
		if c.Redis == nil {
			c.Redis = DefaultRedisConfig()
		}
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	default:
		return ErrInvalidConfig(fmt.Sprintf("unknown cache type: %s", c.Type))
	}
	return nil
}

// New creates a cache from its configuration
func New(cfg Config) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case TypeRistretto:
		return NewRistretto(cfg.Capacity, cfg.TTL)
	case TypeRedis:
		return NewRedisCache(cfg.Redis)
	case TypeHybrid:
		return NewHybridCache(&HybridCacheConfig{
			L1Capacity: cfg.Capacity,
			L1TTL:      cfg.TTL,
			L2Enabled:  true,
			L2Config:   cfg.Redis,
		})
	default:
		return NewLRU(cfg.Capacity, cfg.TTL), nil
	}
}

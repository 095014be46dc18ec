package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// RedisCache implements Cache using Redis as a distributed decision cache.
// Redis failures degrade to cache misses.
type RedisCache struct {
	client redis.UniversalClient
	config *RedisConfig
	counters
	errors uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(config.options())

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, ErrConnectionFailed(err)
	}

	return NewRedisCacheWithClient(client, config), nil
}

// NewRedisCacheWithClient wraps an existing client without checking the connection
func NewRedisCacheWithClient(client redis.UniversalClient, config *RedisConfig) *RedisCache {
	if config == nil {
		config = DefaultRedisConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisCache{
		client: client,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *RedisCache) key(key string) string {
	return c.config.KeyPrefix + key
}

// Get retrieves a decision from Redis
func (c *RedisCache) Get(key string) (*types.EvaluationResult, bool) {
	result, err := c.get(key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			atomic.AddUint64(&c.errors, 1)
		}
		c.miss()
		return nil, false
	}

	c.hit()
	return result, true
}

func (c *RedisCache) get(key string) (*types.EvaluationResult, error) {
	data, err := c.client.Get(c.ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, err
	}

	var result types.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, ErrDeserializationFailed(err)
	}
	return &result, nil
}

// Set stores a decision with the configured TTL
func (c *RedisCache) Set(key string, value *types.EvaluationResult) {
	if value == nil {
		return
	}
	if err := c.set(key, value); err != nil {
		atomic.AddUint64(&c.errors, 1)
	}
}

func (c *RedisCache) set(key string, value *types.EvaluationResult) error {
	data, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed(err)
	}
	if err := c.client.Set(c.ctx, c.key(key), data, c.config.TTL).Err(); err != nil {
		return ErrOperationFailed("set", err)
	}
	return nil
}

// Delete removes a key from Redis
func (c *RedisCache) Delete(key string) {
	if err := c.client.Del(c.ctx, c.key(key)).Err(); err != nil {
		atomic.AddUint64(&c.errors, 1)
	}
}

// Clear removes all entries matching the key prefix
func (c *RedisCache) Clear() {
	iter := c.client.Scan(c.ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(c.ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		atomic.AddUint64(&c.errors, 1)
	}

	if len(keys) > 0 {
		c.client.Del(c.ctx, keys...)
	}
}

// Stats returns cache statistics. Size counts keys under the prefix.
func (c *RedisCache) Stats() Stats {
	size := 0
	iter := c.client.Scan(c.ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(c.ctx) {
		size++
	}

	return c.stats(size)
}

// Errors returns the number of failed Redis operations
func (c *RedisCache) Errors() uint64 {
	return atomic.LoadUint64(&c.errors)
}

// Exists checks if a key exists
func (c *RedisCache) Exists(key string) bool {
	exists, err := c.client.Exists(c.ctx, c.key(key)).Result()
	return err == nil && exists > 0
}

// GetTTL returns the remaining TTL for a key
func (c *RedisCache) GetTTL(key string) time.Duration {
	ttl, err := c.client.TTL(c.ctx, c.key(key)).Result()
	if err != nil {
		return -1
	}
	return ttl
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.cancel()
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// Ristretto is a local cache backed by dgraph-io/ristretto. Admission is
// probabilistic, so a Set is not guaranteed to be retained.
type Ristretto struct {
	cache *ristretto.Cache
	ttl   time.Duration

	counters
}

// NewRistretto creates a ristretto cache holding roughly capacity entries
func NewRistretto(capacity int, ttl time.Duration) (*Ristretto, error) {
	if capacity <= 0 {
		return nil, ErrInvalidConfig("capacity must be greater than 0")
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
	})
	if err != nil {
		return nil, ErrOperationFailed("create ristretto cache", err)
	}

	return &Ristretto{cache: c, ttl: ttl}, nil
}

// Get retrieves a value from the cache
func (c *Ristretto) Get(key string) (*types.EvaluationResult, bool) {
	value, ok := c.cache.Get(key)
	if !ok {
		c.miss()
		return nil, false
	}

	result, ok := value.(*types.EvaluationResult)
	if !ok {
		c.miss()
		return nil, false
	}

	c.hit()
	return result.Clone(), true
}

// Set adds a value with a cost of one entry
func (c *Ristretto) Set(key string, value *types.EvaluationResult) {
	if value == nil {
		return
	}
	c.cache.SetWithTTL(key, value.Clone(), 1, c.ttl)
}

// Delete removes a key from the cache
func (c *Ristretto) Delete(key string) {
	c.cache.Del(key)
}

// Clear removes all entries from the cache
func (c *Ristretto) Clear() {
	c.cache.Clear()
}

// Wait blocks until buffered writes have been applied
func (c *Ristretto) Wait() {
	c.cache.Wait()
}

// Stats returns cache statistics. Size is not tracked by ristretto and is
// always reported as zero.
func (c *Ristretto) Stats() Stats {
	return c.stats(0)
}

// Close stops the ristretto background goroutines
func (c *Ristretto) Close() error {
	c.cache.Close()
	return nil
}

package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// LRU is an in-process cache evicting the least recently used decision once
// capacity is reached. Entries older than ttl read as misses.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	index    map[string]*list.Element
	recency  *list.List // front is most recent

	counters
}

type lruItem struct {
	key     string
	result  *types.EvaluationResult
	expires time.Time
}

// NewLRU creates an LRU cache; capacity is at least one
func NewLRU(capacity int, ttl time.Duration) *LRU {
	return &LRU{
		capacity: max(capacity, 1),
		ttl:      ttl,
		index:    make(map[string]*list.Element),
		recency:  list.New(),
	}
}

func (c *LRU) expired(it *lruItem, now time.Time) bool {
	return c.ttl > 0 && now.After(it.expires)
}

// Get returns a copy of the cached decision
func (c *LRU) Get(key string) (*types.EvaluationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.miss()
		return nil, false
	}
	it := el.Value.(*lruItem)
	if c.expired(it, time.Now()) {
		c.drop(el)
		c.miss()
		return nil, false
	}

	c.recency.MoveToFront(el)
	c.hit()
	return it.result.Clone(), true
}

// Set stores a copy of value; nil values are ignored
func (c *LRU) Set(key string, value *types.EvaluationResult) {
	if value == nil {
		return
	}
	expires := time.Now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		it := el.Value.(*lruItem)
		it.result, it.expires = value.Clone(), expires
		c.recency.MoveToFront(el)
		return
	}

	for c.recency.Len() >= c.capacity {
		c.drop(c.recency.Back())
	}
	c.index[key] = c.recency.PushFront(&lruItem{key: key, result: value.Clone(), expires: expires})
}

func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.index)
	c.recency.Init()
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	size := c.recency.Len()
	c.mu.Unlock()
	return c.stats(size)
}

// Cleanup removes expired entries and returns how many were removed
func (c *LRU) Cleanup() int {
	if c.ttl <= 0 {
		return 0
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*lruItem), now) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}

// drop must be called with mu held
func (c *LRU) drop(el *list.Element) {
	delete(c.index, el.Value.(*lruItem).key)
	c.recency.Remove(el)
}

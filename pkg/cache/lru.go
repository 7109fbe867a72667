// Package cache provides an in-memory LRU cache with TTL. The federation
// parser uses it to remember schema validation outcomes, since peers send the
// same action schema with every object version.
package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with its expiration and last access time.
type entry[V any] struct {
	value     V
	expiresAt time.Time
	usedAt    time.Time
}

// LRU is a thread-safe cache with TTL and max-size eviction. When the cache
// is full, the least recently used entry is evicted. Expired entries are
// lazily evicted on Get.
type LRU[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits, misses int64
}

// New creates a cache holding at most maxSize entries for ttl each.
// maxSize is raised to 1 and a non-positive ttl becomes one minute.
func New[V any](maxSize int, ttl time.Duration) *LRU[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LRU[V]{
		items:   make(map[string]*entry[V], maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the clock; used by tests.
func (c *LRU[V]) WithClock(now func() time.Time) *LRU[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the value stored under key. A missing or expired key yields
// the zero value and false.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.items, key)
		c.misses++
		return zero, false
	}
	e.usedAt = now
	c.hits++
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictLeastRecent()
	}
	c.items[key] = &entry[V]{
		value:     value,
		expiresAt: now.Add(c.ttl),
		usedAt:    now,
	}
}

// GetOrCompute returns the cached value for key or computes and stores it.
// Concurrent callers may compute the same key twice; the last write wins.
func (c *LRU[V]) GetOrCompute(key string, compute func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := compute()
	c.Set(key, v)
	return v
}

// Invalidate removes a specific key.
func (c *LRU[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll removes all entries.
func (c *LRU[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry[V], c.maxSize)
}

// Size returns the number of entries, including expired ones that have not
// been cleaned up yet.
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the hit and miss counters.
func (c *LRU[V]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// evictLeastRecent must be called with c.mu held.
func (c *LRU[V]) evictLeastRecent() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.items {
		if first || e.usedAt.Before(oldest) {
			oldestKey, oldest, first = k, e.usedAt, false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}

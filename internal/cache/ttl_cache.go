// Package cache provides an in-memory, thread-safe cache of rendered
// passages with per-entry expiration.
package cache

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds a cache created with maxEntries <= 0.
const DefaultMaxEntries = 1024

type entry[V any] struct {
	value  V
	stored time.Time
}

// TTLCache is a thread-safe cache where each entry expires ttl after it was
// stored. When full, storing a new key evicts the oldest entry.
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	data       map[K]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates a TTLCache. A zero ttl never expires entries.
func New[K comparable, V any](ttl time.Duration, maxEntries int) *TTLCache[K, V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &TTLCache[K, V]{
		data:       make(map[K]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value for key when present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || c.expiredLocked(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting the oldest entry when the cache is full.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.evictLocked()
	}
	c.data[key] = entry[V]{value: value, stored: c.now()}
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result when it succeeds.
func (c *TTLCache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err := load()
	if err != nil {
		return v, false, err
	}
	c.Set(key, v)
	return v, false, nil
}

// Purge drops expired entries and reports how many were removed.
func (c *TTLCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.data {
		if c.expiredLocked(e) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Delete removes key if present.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// expiredLocked MUST be called with at least a read lock held.
func (c *TTLCache[K, V]) expiredLocked(e entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.stored) >= c.ttl
}

// evictLocked drops expired entries, or the oldest one when none expired.
// MUST be called with the write lock held.
func (c *TTLCache[K, V]) evictLocked() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
		dropped   bool
	)
	for k, e := range c.data {
		if c.expiredLocked(e) {
			delete(c.data, k)
			dropped = true
			continue
		}
		if !found || e.stored.Before(oldest) {
			oldestKey, oldest, found = k, e.stored, true
		}
	}
	if !dropped && found {
		delete(c.data, oldestKey)
	}
}

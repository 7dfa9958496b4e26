package cache

import (
	"sync"
	"time"
)

// entry represents a cached value with expiration
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL cache keyed by string
type Cache[V any] struct {
	items map[string]entry[V]
	ttl   time.Duration
	now   func() time.Time
	mutex sync.RWMutex
}

// New creates a cache whose entries live for ttl
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a value; expired entries are evicted and reported as missing
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	item, exists := c.items[key]
	c.mutex.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}

	if !c.now().Before(item.expiresAt) {
		c.mutex.Lock()
		// Re-check under the write lock, a concurrent Set may have refreshed it
		if current, ok := c.items[key]; ok && !c.now().Before(current.expiresAt) {
			delete(c.items, key)
		}
		c.mutex.Unlock()
		return zero, false
	}

	return item.value, true
}

// Set stores a value with the cache TTL
func (c *Cache[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Len returns the number of stored entries, expired ones included
func (c *Cache[V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

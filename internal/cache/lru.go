// Package cache provides the in-memory, Redis and two-phase caches behind
// domain.Cache, and a blob adapter that lets a cache hold the policy document.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultLocalMaxSize = 10000

// LRUCache is a size-bounded in-memory cache with per-entry expiry. It is
// the single-node cache and L1 of the two-phase cache.
type LRUCache struct {
	factCodec

	mu       sync.Mutex
	capacity int
	index    map[string]*list.Element
	recency  *list.List // front is most recently used
	now      func() time.Time
	stats    Stats
}

// Stats is a snapshot of LRU usage.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero never expires
}

// NewLRUCache creates an LRU cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultLocalMaxSize
	}
	c := &LRUCache{
		capacity: capacity,
		index:    make(map[string]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
	c.factCodec = factCodec{store: c}
	return c
}

// Get returns nil, nil for a missing or expired key.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return nil, nil
	}
	e := el.Value.(*lruEntry)
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.drop(el)
		c.stats.Misses++
		return nil, nil
	}

	c.recency.MoveToFront(el)
	c.stats.Hits++
	return e.value, nil
}

// Set stores value under key. A ttl of zero or less never expires.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		e := el.Value.(*lruEntry)
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(el)
		return nil
	}

	c.index[key] = c.recency.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
		c.stats.Evictions++
	}
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close discards every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]*list.Element)
	c.recency.Init()
	return nil
}

// Stats returns the current usage counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.recency.Len()
	s.Capacity = c.capacity
	return s
}

func (c *LRUCache) drop(el *list.Element) {
	c.recency.Remove(el)
	delete(c.index, el.Value.(*lruEntry).key)
}

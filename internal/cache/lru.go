// Package cache provides the insight cache and the dispatch dedup ledger.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var errSchoolRequired = errors.New("schoolID is required")

// LRUCache is a thread-safe LRU cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*counterEntry
	hits     int64
	misses   int64
	now      func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// Stats is a point-in-time view of the LRU.
type Stats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Counters int   `json:"counters"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// NewLRUCache creates an LRU cache holding at most maxSize values.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*counterEntry),
		now:      time.Now,
	}
}

// Get returns the value stored under key, or nil on a miss.
func (c *LRUCache) Get(_ context.Context, schoolID string, key string) ([]byte, error) {
	if schoolID == "" {
		return nil, errSchoolRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[scopedKey(schoolID, key)]
	if !ok {
		c.misses++
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, nil
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, nil
}

// Set stores value under key until ttl elapses.
func (c *LRUCache) Set(_ context.Context, schoolID string, key string, value []byte, ttl time.Duration) error {
	if schoolID == "" {
		return errSchoolRequired
	}

	full := scopedKey(schoolID, key)
	expires := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[full]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expires
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[full] = c.order.PushFront(&cacheEntry{key: full, value: value, expiresAt: expires})
	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Delete removes key.
func (c *LRUCache) Delete(_ context.Context, schoolID string, key string) error {
	if schoolID == "" {
		return errSchoolRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[scopedKey(schoolID, key)]; ok {
		c.removeElement(elem)
	}
	return nil
}

// IncrementCounter bumps the counter under key. The first increment opens a
// window; the counter restarts at 1 once the window has passed.
func (c *LRUCache) IncrementCounter(_ context.Context, schoolID string, key string, window time.Duration) (int64, error) {
	if schoolID == "" {
		return 0, errSchoolRequired
	}

	full := scopedKey(schoolID, "counter:"+key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.counters[full]
	if !ok || now.After(entry.expiresAt) {
		if !ok && len(c.counters) >= c.maxSize {
			c.sweepCounters(now)
		}
		c.counters[full] = &counterEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// ResetCounter drops the counter under key.
func (c *LRUCache) ResetCounter(_ context.Context, schoolID string, key string) error {
	if schoolID == "" {
		return errSchoolRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, scopedKey(schoolID, "counter:"+key))
	return nil
}

// sweepCounters drops expired counters. Live ones are kept even past
// maxSize: evicting a dedup claim early would let a duplicate through.
func (c *LRUCache) sweepCounters(now time.Time) {
	for k, e := range c.counters {
		if now.After(e.expiresAt) {
			delete(c.counters, k)
		}
	}
}

// Ping checks cache health.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]*counterEntry)
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:     c.order.Len(),
		Capacity: c.maxSize,
		Counters: len(c.counters),
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

func (c *LRUCache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

func scopedKey(schoolID, key string) string {
	return schoolID + ":" + key
}

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type record struct {
	value        []byte
	createdAt    time.Time
	ttl          time.Duration
	etag         string
	lastAccessed time.Time
}

// LRUCache is the in-process Cache adapter. Eviction ordering at
// capacity is delegated to hashicorp/golang-lru/v2's Add; TTL expiry,
// namespacing, and lazy sweep-on-Get are layered on top since the
// library itself has no TTL concept.
type LRUCache struct {
	namespace  string
	defaultTTL time.Duration

	mu    sync.Mutex
	lru   *lru.Cache[string, *record]
	stats Stats
}

// NewLRU constructs an LRUCache bounded at maxSize entries. Eviction
// counting is done via Add's return value rather than the library's
// OnEvict hook: OnEvict fires synchronously from inside Add/Remove/Purge
// while our own mutex is already held by the caller, and golang-lru/v2
// invokes it for explicit removals too, not just capacity evictions — a
// locking callback there would both deadlock and double-count.
func NewLRU(namespace string, maxSize int, defaultTTL time.Duration) (*LRUCache, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("cache: max_size must be > 0, got %d", maxSize)
	}
	inner, err := lru.New[string, *record](maxSize)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &LRUCache{namespace: namespace, defaultTTL: defaultTTL, lru: inner}, nil
}

func (c *LRUCache) namespacedKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// Get performs a lazy sweep of expired entries, then locates key. A hit
// moves the entry to the most-recently-used position (handled by the
// underlying library's Get) and updates LastAccessed.
func (c *LRUCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	namespaced := c.namespacedKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.evictExpiredLocked(now)

	rec, ok := c.lru.Get(namespaced)
	if !ok {
		c.stats.Misses++
		return Entry{}, false, nil
	}

	rec.lastAccessed = now
	c.stats.Hits++
	return entryFromRecord(rec), true, nil
}

// Set inserts value at the most-recent position, evicting the
// least-recently-used entry first if the cache is at capacity (handled
// by the underlying library's Add).
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, etag string) error {
	effectiveTTL := ttl
	if effectiveTTL == 0 {
		effectiveTTL = c.defaultTTL
	}

	namespaced := c.namespacedKey(key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.lru.Add(namespaced, &record{
		value:        value,
		createdAt:    now,
		ttl:          effectiveTTL,
		etag:         etag,
		lastAccessed: now,
	})
	if evicted {
		c.stats.Evictions++
	}
	return nil
}

// Delete removes key unconditionally.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(c.namespacedKey(key))
	return nil
}

// Exists reports whether key is present and unexpired, without
// affecting hit/miss stats or recency order.
func (c *LRUCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.lru.Peek(c.namespacedKey(key))
	if !ok {
		return false, nil
	}
	return !rec.expired(time.Now()), nil
}

// Clear drops every entry in this cache, regardless of namespace —
// namespace isolation is achieved by using distinct LRUCache instances.
func (c *LRUCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}

// Stats returns a snapshot of lifetime activity, with Size reflecting
// the current entry count.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.stats
	snapshot.Size = c.lru.Len()
	return snapshot
}

// evictExpiredLocked must be called with c.mu held. It sweeps every
// entry for TTL expiry; called before every Get per the component design.
func (c *LRUCache) evictExpiredLocked(now time.Time) {
	for _, key := range c.lru.Keys() {
		rec, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if rec.expired(now) {
			c.lru.Remove(key)
			c.stats.Evictions++
		}
	}
}

func (r *record) expired(now time.Time) bool {
	if r.ttl <= 0 {
		return false
	}
	return now.Sub(r.createdAt) >= r.ttl
}

func entryFromRecord(r *record) Entry {
	return Entry{
		Value:        r.value,
		CreatedAt:    r.createdAt,
		TTL:          r.ttl,
		ETag:         r.etag,
		LastAccessed: r.lastAccessed,
	}
}

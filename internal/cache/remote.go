package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteConfig configures a RemoteCache instance.
type RemoteConfig struct {
	Host       string
	Port       int
	DB         int
	Password   string
	DefaultTTL time.Duration
	Namespace  string
}

// wireEntry is the JSON-serialized form stored in Redis.
type wireEntry struct {
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	TTL       int64     `json:"ttl_ns"`
	ETag      string    `json:"etag,omitempty"`
}

// RemoteCache is the spec's "remote backend variant": the same abstract
// Cache operations backed by a Redis-compatible store instead of an
// in-process map. Keys are namespace:fingerprint; values are
// JSON-serialized; Clear performs a SCAN-based bulk delete over the
// namespace prefix rather than FLUSHDB, so multiple namespaces can share
// one Redis database.
type RemoteCache struct {
	client     *redis.Client
	namespace  string
	defaultTTL time.Duration

	mu    sync.Mutex
	stats Stats
}

// NewRemote constructs a RemoteCache from cfg.
func NewRemote(cfg RemoteConfig) *RemoteCache {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RemoteCache{client: client, namespace: cfg.Namespace, defaultTTL: cfg.DefaultTTL}
}

func (c *RemoteCache) namespacedKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// Get fetches and deserializes key. A missing or Redis-expired key
// records a miss; Redis's own TTL handles expiry so no client-side sweep
// is needed here (unlike LRUCache, which has no server-side expiry).
func (c *RemoteCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.namespacedKey(key)).Bytes()
	if err == redis.Nil {
		c.incrMiss()
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: remote get: %w", err)
	}

	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return Entry{}, false, fmt.Errorf("cache: remote decode: %w", err)
	}

	c.incrHit()
	return Entry{
		Value:     w.Value,
		CreatedAt: w.CreatedAt,
		TTL:       time.Duration(w.TTL),
		ETag:      w.ETag,
	}, true, nil
}

// Set serializes value and writes it with ttl (or DefaultTTL when ttl is
// zero) as the Redis expiry.
func (c *RemoteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, etag string) error {
	effectiveTTL := ttl
	if effectiveTTL == 0 {
		effectiveTTL = c.defaultTTL
	}

	payload, err := json.Marshal(wireEntry{
		Value:     value,
		CreatedAt: time.Now(),
		TTL:       int64(effectiveTTL),
		ETag:      etag,
	})
	if err != nil {
		return fmt.Errorf("cache: remote encode: %w", err)
	}

	if err := c.client.Set(ctx, c.namespacedKey(key), payload, effectiveTTL).Err(); err != nil {
		return fmt.Errorf("cache: remote set: %w", err)
	}
	return nil
}

// Delete removes key unconditionally.
func (c *RemoteCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.namespacedKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: remote delete: %w", err)
	}
	return nil
}

// Exists reports whether key is present, without affecting stats.
func (c *RemoteCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.namespacedKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: remote exists: %w", err)
	}
	return n > 0, nil
}

// Clear scans for every key under this cache's namespace prefix and
// deletes them in batches, matching spec.md's "scan-based bulk clear"
// over FLUSHDB so other namespaces sharing the same Redis DB survive.
func (c *RemoteCache) Clear(ctx context.Context) error {
	pattern := c.namespacedKey("*")
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache: remote scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: remote bulk delete: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Stats returns hit/miss counters accumulated client-side; Redis has no
// native per-keyspace hit counter exposed through go-redis's typed API,
// so these are maintained locally.
func (c *RemoteCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RemoteCache) incrHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
}

func (c *RemoteCache) incrMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

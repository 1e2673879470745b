package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is the snapshot store in front of the upstream API. Entries are
// idempotent, so racing writers are benign (last writer wins). GetStale
// returns an entry even after its TTL has passed; it is the last resort of
// the fallback chain.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	GetStale(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

const staleRetention = 24 * time.Hour

// RedisCache stores JSON snapshots in Redis. Each Set writes the entry twice:
// once with the operation TTL and once under a ":stale" suffix kept for a day.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) bool {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dest) == nil
}

func (c *RedisCache) GetStale(ctx context.Context, key string, dest interface{}) bool {
	b, err := c.rdb.Get(ctx, key+":stale").Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dest) == nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, key, b, ttl)
	c.rdb.Set(ctx, key+":stale", b, staleRetention)
}

// MemoryCache is a process-local Cache, used in tests and as a fallback when
// Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return false
	}
	return json.Unmarshal(e.data, dest) == nil
}

func (c *MemoryCache) GetStale(ctx context.Context, key string, dest interface{}) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return json.Unmarshal(e.data, dest) == nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{data: b, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

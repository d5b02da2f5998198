package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shepherdvovkes/reyestr/internal/config"
)

// Cache is a read-through Redis cache for hot dashboard reads.
//
// Every method is safe to call on a disabled cache: reads miss, writes and
// invalidations are no-ops. Redis errors are logged and swallowed so cache
// availability never affects request correctness; stale reads are bounded by
// the per-family TTLs.
type Cache struct {
	client *redis.Client
	cfg    *config.CacheConfig
}

// New creates a cache backed by Redis. When the cache is disabled it returns a
// usable no-op instance. When Redis is unreachable the behaviour depends on
// cfg.Required: required caches fail startup, optional caches degrade to no-op.
func New(ctx context.Context, cfg *config.CacheConfig) (*Cache, error) {
	c := &Cache{cfg: cfg}
	if !cfg.Enabled {
		slog.Info("cache disabled, all reads fall through to the database")
		return c, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		if cfg.Required {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr(), err)
		}
		slog.Warn("redis cache not available, continuing without cache",
			"addr", cfg.Addr(),
			"error", err,
		)
		_ = client.Close()
		return c, nil
	}

	slog.Info("redis cache connected", "addr", cfg.Addr(), "db", cfg.DB)
	c.client = client
	return c, nil
}

// Enabled reports whether the cache has a live Redis connection.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// GetJSON reads a cached value into dest. Returns false on miss, on a disabled
// cache, or on any Redis/decoding error.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	if !c.Enabled() {
		return false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("cache entry not decodable, dropping", "key", key, "error", err)
		c.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON stores a value under key with the given TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.Enabled() {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache value not encodable", "key", key, "error", err)
		return
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
	}
}

// Delete removes a single key. Invalidation failures are logged only; the
// caller's write has already committed.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache delete failed", "keys", keys, "error", err)
	}
}

// DeletePattern removes every key matching the glob pattern using SCAN so the
// sweep never blocks Redis on a large keyspace.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) {
	if !c.Enabled() {
		return
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache scan failed", "pattern", pattern, "error", err)
		return
	}
	c.Delete(ctx, keys...)
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// TaskTTL returns the TTL for task keys.
func (c *Cache) TaskTTL() time.Duration { return c.cfg.TaskTTL }

// StatisticsTTL returns the TTL for statistics keys.
func (c *Cache) StatisticsTTL() time.Duration { return c.cfg.StatisticsTTL }

// DocumentTTL returns the TTL for document keys.
func (c *Cache) DocumentTTL() time.Duration { return c.cfg.DocumentTTL }

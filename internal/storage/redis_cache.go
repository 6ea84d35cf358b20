package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

// RedisCache is a cache.Cache backed by Redis so several screener processes
// share enrichment results. Values are stored as JSON and expire through
// Redis TTLs. Redis failures degrade to cache misses.
type RedisCache[V any] struct {
	client RedisClient
	prefix string
}

// NewRedisCache creates a cache whose keys are prefixed with prefix
func NewRedisCache[V any](client RedisClient, prefix string) *RedisCache[V] {
	return &RedisCache[V]{client: client, prefix: prefix}
}

// Get returns the cached value of key
func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var v V
	found, err := c.client.GetJSON(ctx, c.prefix+key, &v)
	if err != nil {
		logger.Warn("Redis cache read failed",
			logger.String("key", c.prefix+key),
			logger.ErrorField(err),
		)
		var zero V
		return zero, false
	}
	return v, found
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *RedisCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl); err != nil {
		logger.Warn("Redis cache write failed",
			logger.String("key", c.prefix+key),
			logger.ErrorField(err),
		)
	}
}

// Evict removes key
func (c *RedisCache[V]) Evict(ctx context.Context, key string) {
	if err := c.client.Delete(ctx, c.prefix+key); err != nil {
		logger.Warn("Redis cache evict failed",
			logger.String("key", c.prefix+key),
			logger.ErrorField(err),
		)
	}
}

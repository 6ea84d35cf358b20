package storage

import (
	"context"
	"time"
)

// RedisClient defines the Redis operations used by the screener
type RedisClient interface {
	// Key-value operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// GetJSON unmarshals the value of key into dest and reports whether the
	// key existed
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	Delete(ctx context.Context, key string) error

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error

	// Close closes the Redis connection
	Close() error
}

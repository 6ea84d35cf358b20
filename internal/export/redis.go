package export

import (
	"context"
	"fmt"

	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/internal/storage"
)

// RedisSink publishes run results on a Redis pub/sub channel
type RedisSink struct {
	client  storage.RedisClient
	channel string
}

// NewRedisSink creates a sink publishing on channel
func NewRedisSink(client storage.RedisClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

// Publish publishes result as JSON
func (s *RedisSink) Publish(ctx context.Context, result models.RunResult) error {
	if err := s.client.Publish(ctx, s.channel, result); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.channel, err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller
func (s *RedisSink) Close() error { return nil }

package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Cache is a key/value store with per-entry expiry
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Evict(ctx context.Context, key string)
}

// SymbolKey normalizes a ticker symbol for use as a cache key
func SymbolKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IndicatorKey builds the key of an indicator reading
func IndicatorKey(symbol, timeframe string, period int) string {
	return fmt.Sprintf("%s|%s|%d", SymbolKey(symbol), timeframe, period)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryCache keeps entries in process memory. Expired entries are removed
// lazily when they are looked up. The lock guards the map only; concurrent
// get/compute/set sequences for one key may overwrite each other.
type MemoryCache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	now     func() time.Time
}

// Option configures a MemoryCache
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache[V any](opts ...Option) *MemoryCache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryCache[V]{
		entries: make(map[string]entry[V]),
		now:     o.now,
	}
}

// Get returns the live value for key
func (c *MemoryCache[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (c *MemoryCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Evict removes key
func (c *MemoryCache[V]) Evict(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

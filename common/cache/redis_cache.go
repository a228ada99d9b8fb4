package cache

import (
	"context"
	"time"

	"github.com/clinterm/termserver/common/redis"
)

// RedisCache is a redis-backed cache implementation
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a cache backed by a shared redis client.
// The client is borrowed; Close is a no-op so the owner can keep using it.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.client.Get(ctx, c.prefix+key)
}

// Set stores a value in cache with TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.SetWithExpiry(ctx, c.prefix+key, value, ttl)
}

// Delete removes a value from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.prefix+key)
}

// Close is a no-op; the underlying client is owned elsewhere
func (c *RedisCache) Close() error {
	return nil
}

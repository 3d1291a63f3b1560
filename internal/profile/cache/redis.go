// Package cache provides a Redis-backed cache for resolved rules profiles.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"iqc-platform/internal/profile/domain"
)

// RedisCache caches resolved profiles keyed by device/test. A cache failure
// is never fatal: callers fall through to the binding store.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis at addr and returns a cache with the given
// TTL. Call Close when shutting down.
func NewRedisCache(addr string, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 4,
		MaxRetries:   3,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisCache{client: rdb, ttl: ttl}, nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func key(deviceID, testID string) string {
	return "profile:" + deviceID + ":" + testID
}

// Get returns the cached resolved profile, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, deviceID, testID string) (*domain.RulesProfile, error) {
	val, err := c.client.Get(ctx, key(deviceID, testID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p domain.RulesProfile
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Set stores the resolved profile with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, deviceID, testID string, p domain.RulesProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(deviceID, testID), data, c.ttl).Err()
}

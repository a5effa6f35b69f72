package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStickyTTL bounds how long a sticky notification holds its key when
// the process that showed it never releases it.
const DefaultStickyTTL = time.Hour

// RedisDeduper shares the active notification set between processes through
// SETNX keys with a TTL, so several dashboards behind the same Redis show a
// message once.
type RedisDeduper struct {
	rdb       *redis.Client
	stickyTTL time.Duration
	prefix    string
	logger    *zap.Logger
}

// NewRedisDeduper connects to the Redis server at url (redis://host:port/db).
// Sticky notifications hold their key for stickyTTL unless released first.
func NewRedisDeduper(url string, stickyTTL time.Duration, logger *zap.Logger) (*RedisDeduper, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisDeduperClient(redis.NewClient(opts), stickyTTL, logger), nil
}

// NewRedisDeduperClient wraps an existing client.
func NewRedisDeduperClient(rdb *redis.Client, stickyTTL time.Duration, logger *zap.Logger) *RedisDeduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stickyTTL <= 0 {
		stickyTTL = DefaultStickyTTL
	}
	return &RedisDeduper{rdb: rdb, stickyTTL: stickyTTL, prefix: "sitebook:notify:", logger: logger}
}

// Acquire returns true if key is not held by anyone. The key expires after
// ttl, or after the sticky TTL when ttl is zero. When Redis is unreachable it
// allows the notification.
func (d *RedisDeduper) Acquire(ctx context.Context, key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = d.stickyTTL
	}
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, 1, ttl).Result()
	if err != nil {
		d.logger.Warn("Redis notification de-dup failed, allowing notification",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		d.logger.Debug("Skipped duplicated notification", zap.String("key", key))
	}
	return ok
}

// Release frees key so the message can be shown again.
func (d *RedisDeduper) Release(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		d.logger.Warn("Failed to release notification key", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the Redis client.
func (d *RedisDeduper) Close() error {
	return d.rdb.Close()
}

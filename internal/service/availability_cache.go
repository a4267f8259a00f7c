package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/classbook/internal/config"
)

// CountCache holds per-occurrence enrollment counts for the availability
// display. Entries may be stale; capacity checks never read them.
type CountCache interface {
	Get(ctx context.Context, classID uuid.UUID, date time.Time) (count int, ok bool, err error)
	Set(ctx context.Context, classID uuid.UUID, date time.Time, count int) error
	Invalidate(ctx context.Context, classID uuid.UUID, date time.Time) error
}

// RedisCountCache stores counts as plain integers with a TTL.
type RedisCountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCountCache creates a RedisCountCache.
func NewRedisCountCache(rdb *redis.Client, ttl time.Duration) *RedisCountCache {
	return &RedisCountCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCountCache) Get(ctx context.Context, classID uuid.UUID, date time.Time) (int, bool, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.OccurrenceCountKey(classID, date)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (c *RedisCountCache) Set(ctx context.Context, classID uuid.UUID, date time.Time, count int) error {
	return c.rdb.Set(ctx, config.CacheKey.OccurrenceCountKey(classID, date), count, c.ttl).Err()
}

func (c *RedisCountCache) Invalidate(ctx context.Context, classID uuid.UUID, date time.Time) error {
	return c.rdb.Del(ctx, config.CacheKey.OccurrenceCountKey(classID, date)).Err()
}

// NoopCountCache never hits. Used when Redis is not configured.
type NoopCountCache struct{}

func (NoopCountCache) Get(context.Context, uuid.UUID, time.Time) (int, bool, error) {
	return 0, false, nil
}

func (NoopCountCache) Set(context.Context, uuid.UUID, time.Time, int) error { return nil }

func (NoopCountCache) Invalidate(context.Context, uuid.UUID, time.Time) error { return nil }

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"retailpos/internal/domain"
)

type RedisStatsCache struct {
	client *redis.Client
}

// NewRedisStatsCache parses a redis:// URL, e.g. redis://:secret@localhost:6379/0.
func NewRedisStatsCache(redisURL string) (*RedisStatsCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStatsCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisStatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStatsCache) Close() error {
	return c.client.Close()
}

func (c *RedisStatsCache) Get(ctx context.Context, shopID string, date string) (*domain.DailyStat, bool, error) {
	val, err := c.client.Get(ctx, statsKey(shopID, date)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stat domain.DailyStat
	if err := json.Unmarshal([]byte(val), &stat); err != nil {
		return nil, false, err
	}
	return &stat, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, value *domain.DailyStat, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey(value.ShopID, value.Date), payload, ttl).Err()
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, shopID string, date string) error {
	return c.client.Del(ctx, statsKey(shopID, date)).Err()
}

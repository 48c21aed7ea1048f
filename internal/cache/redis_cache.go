package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisViewCache struct {
	client *redis.Client
}

func NewRedisViewCache(addr string, password string, db int) *RedisViewCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisViewCache{client: client}
}

func (c *RedisViewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisViewCache) Close() error {
	return c.client.Close()
}

func (c *RedisViewCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisViewCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisViewCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

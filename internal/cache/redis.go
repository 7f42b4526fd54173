package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache shared between processes through Redis.
type RedisCache struct {
	client *redis.Client
	config Config
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Cache    Config
}

// NewRedisCacheWithConfig connects to Redis and verifies the connection
// with a PING before returning.
func NewRedisCacheWithConfig(config RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", config.Addr, err)
	}
	return &RedisCache{client: client, config: config.Cache}, nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, config Config) *RedisCache {
	return &RedisCache{client: client, config: config}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss{Key: key}
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = redis.KeepTTL
	}
	return r.client.Set(ctx, r.config.Prefix+key, value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.config.Prefix+key).Err()
}

// Clear deletes every key under the configured prefix.
func (r *RedisCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.config.Prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.config.Prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the Redis client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

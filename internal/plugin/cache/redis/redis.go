package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirino/case-recorder/internal/config"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.IterationCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CASE_RECORDER_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURLWithTTL creates a cache from a Redis URL with a default entry TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.IterationCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisIterationCache{client: client, ttl: ttl}, nil
}

type redisIterationCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func (c *redisIterationCache) Available() bool {
	return true
}

func (c *redisIterationCache) Get(ctx context.Context, key string) (*registrycache.CachedIterations, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cached registrycache.CachedIterations
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (c *redisIterationCache) Set(ctx context.Context, key string, value registrycache.CachedIterations, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *redisIterationCache) Remove(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

var _ registrycache.IterationCache = (*redisIterationCache)(nil)

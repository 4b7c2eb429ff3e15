package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirino/case-recorder/internal/config"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultTTL     = 10 * time.Minute
	defaultMaxCost = 64 << 20
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "local",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.IterationCache, error) {
	cfg := config.FromContext(ctx)
	var (
		maxCost int64
		ttl     time.Duration
	)
	if cfg != nil {
		maxCost = cfg.CacheMaxCost
		ttl = cfg.CacheTTL
	}
	return New(maxCost, ttl)
}

// New creates an in-process cache bounded by maxCost bytes of encoded records.
func New(maxCost int64, ttl time.Duration) (registrycache.IterationCache, error) {
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, registrycache.CachedIterations]{
		// roughly 10x the expected number of live entries
		NumCounters: max(maxCost/1024, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &localIterationCache{cache: c, ttl: ttl}, nil
}

type localIterationCache struct {
	cache *ristretto.Cache[string, registrycache.CachedIterations]
	ttl   time.Duration
}

func (c *localIterationCache) Available() bool { return true }

func (c *localIterationCache) Get(_ context.Context, key string) (*registrycache.CachedIterations, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *localIterationCache) Set(_ context.Context, key string, value registrycache.CachedIterations, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	cost := int64(1)
	if raw, err := json.Marshal(value.Records); err == nil {
		cost = int64(len(raw))
	}
	c.cache.SetWithTTL(key, value, cost, ttl)
	// Sets are buffered; make the value visible to the next Get.
	c.cache.Wait()
	return nil
}

func (c *localIterationCache) Remove(_ context.Context, key string) error {
	c.cache.Del(key)
	return nil
}

var _ registrycache.IterationCache = (*localIterationCache)(nil)

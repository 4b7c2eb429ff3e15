package service

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/model"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
)

// decodedCollections are the collections whose decoded form is cached.
var decodedCollections = []model.Collection{
	model.CollectionDriverIterations,
	model.CollectionSystemIterations,
}

// invalidate drops cached decodes that a write to coll can change. Metadata
// drives classification, so it invalidates every decoded collection.
func invalidate(ctx context.Context, c registrycache.IterationCache, coll model.Collection, caseID int64) {
	if c == nil || !c.Available() {
		return
	}
	var colls []model.Collection
	switch {
	case coll == model.CollectionMetadata:
		colls = decodedCollections
	case coll.IsIteration():
		colls = []model.Collection{coll}
	default:
		return
	}
	for _, target := range colls {
		if err := c.Remove(ctx, registrycache.Key(target, caseID)); err != nil {
			log.Warn("Failed to invalidate iteration cache", "collection", target, "case", caseID, "err", err)
		}
	}
}

// generationCache counts invalidations per key so a decode that raced with a
// write is never left in the cache.
type generationCache struct {
	registrycache.IterationCache
	mu   sync.Mutex
	gens map[string]uint64
}

func guardCache(c registrycache.IterationCache) *generationCache {
	if g, ok := c.(*generationCache); ok {
		return g
	}
	return &generationCache{IterationCache: c, gens: map[string]uint64{}}
}

func (c *generationCache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

func (c *generationCache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	c.gens[key]++
	c.mu.Unlock()
	return c.IterationCache.Remove(ctx, key)
}

// setIfCurrent stores value only while no invalidation of key happened since
// gen was read. An invalidation that lands during the write removes it again.
func (c *generationCache) setIfCurrent(ctx context.Context, key string, gen uint64, value registrycache.CachedIterations, ttl time.Duration) error {
	if c.generation(key) != gen {
		return nil
	}
	if err := c.IterationCache.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if c.generation(key) != gen {
		return c.IterationCache.Remove(ctx, key)
	}
	return nil
}

package noop

import (
	"context"
	"time"

	"github.com/chirino/case-recorder/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.IterationCache, error) {
			return New(), nil
		},
	})
}

// New returns a cache that never holds anything.
func New() cache.IterationCache { return &noopIterationCache{} }

type noopIterationCache struct{}

func (n *noopIterationCache) Available() bool { return false }
func (n *noopIterationCache) Get(_ context.Context, _ string) (*cache.CachedIterations, error) {
	return nil, nil
}
func (n *noopIterationCache) Set(_ context.Context, _ string, _ cache.CachedIterations, _ time.Duration) error {
	return nil
}
func (n *noopIterationCache) Remove(_ context.Context, _ string) error { return nil }

var _ cache.IterationCache = (*noopIterationCache)(nil)

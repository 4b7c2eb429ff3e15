package local

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/case-recorder/internal/model"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	"github.com/stretchr/testify/require"
)

func TestLocalIterationCache(t *testing.T) {
	ctx := context.Background()
	c, err := New(1<<20, time.Minute)
	require.NoError(t, err)
	require.True(t, c.Available())

	key := registrycache.Key(model.CollectionSystemIterations, 42)
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)

	value := registrycache.CachedIterations{
		MaxCounter: 5,
		Records:    []model.IterationRecord{{IterationCoordinate: "rank0:root._solve_nonlinear|0", Counter: 5}},
	}
	require.NoError(t, c.Set(ctx, key, value, 0))

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, value, *got)

	require.NoError(t, c.Remove(ctx, key))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestKeyIsScopedByCollectionAndCase(t *testing.T) {
	require.NotEqual(t,
		registrycache.Key(model.CollectionDriverIterations, 1),
		registrycache.Key(model.CollectionSystemIterations, 1))
	require.Equal(t, "case-iterations:driver_iterations:12", registrycache.Key(model.CollectionDriverIterations, 12))
}

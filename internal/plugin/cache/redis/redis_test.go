package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/case-recorder/internal/model"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	"github.com/chirino/case-recorder/internal/testutil/testredis"
	"github.com/stretchr/testify/require"
)

func TestRedisIterationCache(t *testing.T) {
	ctx := context.Background()
	c, err := LoadFromURLWithTTL(ctx, testredis.URL(t), time.Minute)
	require.NoError(t, err)
	require.True(t, c.Available())

	key := registrycache.Key(model.CollectionDriverIterations, 7)
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)

	value := registrycache.CachedIterations{
		MaxCounter: 3,
		Records: []model.IterationRecord{{
			IterationCoordinate: "rank0:SLSQP|0",
			Counter:             3,
			Desvars:             []model.VariableValues{{Name: "pz.z", Values: []any{[]any{5.0, 2.0}}}},
		}},
	}
	require.NoError(t, c.Set(ctx, key, value, 0))

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(3), got.MaxCounter)
	require.Equal(t, value.Records[0].Desvars, got.Records[0].Desvars)

	require.NoError(t, c.Remove(ctx, key))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)
}

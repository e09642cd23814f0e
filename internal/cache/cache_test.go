package cache_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/kigalisim/internal/cache"
	"github.com/example/kigalisim/internal/engnum"
)

func TestContextKeyStableAcrossEqualContexts(t *testing.T) {
	ctx := engnum.Context{
		Population:          decimal.NewFromInt(100),
		AmortizedUnitVolume: decimal.NewFromFloat(2.5),
		VolumeTotal:         decimal.NewFromInt(1000),
		GWP:                 decimal.NewFromInt(1430),
		EnergyIntensity:     decimal.NewFromFloat(0.5),
		LastSpecifiedValue:  decimal.NewFromInt(50),
	}
	same := ctx

	assert.Equal(t, cache.ContextKey(ctx), cache.ContextKey(same))
}

func TestContextKeyDiffersOnAnyField(t *testing.T) {
	base := engnum.Context{Population: decimal.NewFromInt(100)}
	variant := base
	variant.Population = decimal.NewFromInt(101)

	assert.NotEqual(t, cache.ContextKey(base), cache.ContextKey(variant))
}

func TestConverterCacheNilAddrDegradesToAlwaysMiss(t *testing.T) {
	c := cache.NewConverterCache(cache.Config{})
	ctx := context.Background()
	key := cache.ContextKey(engnum.Context{})

	require.False(t, c.Get(ctx, key))
	c.Put(ctx, key) // must not panic with no client
	require.False(t, c.Get(ctx, key))
	require.NoError(t, c.Close())
}

func TestRunLockNilAddrAlwaysAcquires(t *testing.T) {
	l := cache.NewRunLock(cache.Config{})
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "BAU", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "BAU", 0) // a second "process" also succeeds
	require.NoError(t, err)
	require.True(t, ok)

	l.Release(ctx, "BAU", 0) // must not panic with no client
	require.NoError(t, l.Close())
}

func TestNilReceiversAreSafe(t *testing.T) {
	var cc *cache.ConverterCache
	var rl *cache.RunLock
	ctx := context.Background()

	require.False(t, cc.Get(ctx, "x"))
	cc.Put(ctx, "x")
	require.NoError(t, cc.Close())

	ok, err := rl.Acquire(ctx, "s", 0)
	require.NoError(t, err)
	require.True(t, ok)
	rl.Release(ctx, "s", 0)
	require.NoError(t, rl.Close())
}

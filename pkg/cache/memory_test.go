package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ratekit/pkg/cache"
)

func TestMemory_SetGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		c := cache.NewMemory(10)
		require.NoError(t, c.Set(ctx, "user:1", map[string]string{"name": "A"}, time.Minute))

		got, err := cache.GetAs[map[string]string](ctx, c, "user:1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"name": "A"}, got)
	})

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		t.Parallel()

		c := cache.NewMemory(10)
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("nil value is rejected", func(t *testing.T) {
		t.Parallel()

		c := cache.NewMemory(10)
		err := c.Set(ctx, "k", nil, time.Minute)
		assert.ErrorIs(t, err, cache.ErrNilValue)
	})

	t.Run("set overwrites existing value", func(t *testing.T) {
		t.Parallel()

		c := cache.NewMemory(10)
		require.NoError(t, c.Set(ctx, "k", "v1", time.Minute))
		require.NoError(t, c.Set(ctx, "k", "v2", time.Minute))

		got, err := cache.GetAs[string](ctx, c, "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", got)
		assert.Equal(t, 1, c.Len())
	})
}

func TestMemory_LazyExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := cache.NewMemory(10, cache.WithMemoryClock(func() time.Time { return now }))

	require.NoError(t, c.Set(ctx, "k", "v", time.Second))

	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)

	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_EvictsOldestInserted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := cache.NewMemory(2)

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	for _, key := range []string{"b", "c"} {
		_, err := c.Get(ctx, key)
		assert.NoError(t, err, "expected %q to survive eviction", key)
	}
	assert.Equal(t, 2, c.Len())
}

func TestMemory_UpdateKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := cache.NewMemory(2)

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	// Updating does not refresh "a"'s insertion position.
	require.NoError(t, c.Set(ctx, "a", 10, time.Minute))
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	got, err := cache.GetAs[int](ctx, c, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestMemory_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := cache.NewMemory(10)

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Clear(ctx))

	for _, key := range []string{"a", "b"} {
		_, err := c.Get(ctx, key)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	}
	assert.Equal(t, 0, c.Len())
}

func TestNewMemory_PanicsOnInvalidSize(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { cache.NewMemory(0) })
	assert.Panics(t, func() { cache.NewMemory(-1) })
}

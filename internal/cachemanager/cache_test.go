package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheManager_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCacheManager[string]("test", DefaultExpiration, DefaultCleanupInterval)

	_, ok := c.Get(ctx, "pid:1")
	require.False(t, ok)

	c.Set(ctx, "pid:1", "/games/game.exe", DefaultExpiration)
	got, ok := c.Get(ctx, "pid:1")
	require.True(t, ok)
	require.Equal(t, "/games/game.exe", got)
	require.Equal(t, 1, c.Len())

	c.Delete(ctx, "pid:1")
	_, ok = c.Get(ctx, "pid:1")
	require.False(t, ok)
}

func TestInMemoryCacheManager_WrongType(t *testing.T) {
	c := NewInMemoryCacheManager[string]("test", DefaultExpiration, DefaultCleanupInterval)
	c.cache.Set("k", 123, DefaultExpiration)

	got, ok := c.Get(context.Background(), "k")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCacheManager[int]("test", time.Millisecond, time.Hour)
	c.Set(ctx, "k", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}

func TestReadThroughCache(t *testing.T) {
	ctx := context.Background()
	calls := 0
	r := NewReadThroughCache[string, int](
		NewInMemoryCacheManager[string]("test", DefaultExpiration, DefaultCleanupInterval),
		func(_ context.Context, pid int) (string, error) {
			calls++
			if pid < 0 {
				return "", errors.New("no such process")
			}
			return "/bin/app", nil
		},
		time.Minute,
	)

	got, err := r.Get(ctx, "1", 1)
	require.NoError(t, err)
	require.Equal(t, "/bin/app", got)

	_, err = r.Get(ctx, "1", 1)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "second lookup is served from cache")

	_, err = r.Get(ctx, "-1", -1)
	require.Error(t, err)
	_, err = r.Get(ctx, "-1", -1)
	require.Error(t, err)
	require.Equal(t, 3, calls, "errors are not cached")

	r.Forget(ctx, []string{"1"})
	_, err = r.Get(ctx, "1", 1)
	require.NoError(t, err)
	require.Equal(t, 4, calls)
}

package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache loads missing values with fn and caches them. Errors
// are not cached.
type ReadThroughCache[V any, I any] struct {
	cache CacheManager[V]
	fn    func(ctx context.Context, input I) (V, error)
	ttl   time.Duration
}

// NewReadThroughCache wraps cache with the loader fn.
func NewReadThroughCache[V any, I any](
	cache CacheManager[V],
	fn func(ctx context.Context, input I) (V, error),
	ttl time.Duration,
) *ReadThroughCache[V, I] {
	return &ReadThroughCache[V, I]{cache: cache, fn: fn, ttl: ttl}
}

// Get returns the cached value for key or loads it from input.
func (r *ReadThroughCache[V, I]) Get(ctx context.Context, key string, input I) (V, error) {
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}
	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}
	r.cache.Set(ctx, key, value, r.ttl)
	return value, nil
}

// Forget drops keys.
func (r *ReadThroughCache[V, I]) Forget(ctx context.Context, keys []string) {
	r.cache.Delete(ctx, keys...)
}

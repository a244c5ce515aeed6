// Package cachemanager provides small expiring in-memory caches keyed by
// string.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed expiring cache.
type CacheManager[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	Len() int
	Flush(ctx context.Context)
}

// Package cachestore caches small string values (usually JSON) with a fixed
// TTL, either in process memory or in Redis.
package cachestore

import (
	"context"
)

// CacheStore is a namespaced string cache. A miss is reported as an empty
// string and a nil error.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

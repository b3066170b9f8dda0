// Package cache provides the shared month-view cache.
//
// The cache is a plain key/value store with per-key TTLs, shared by every
// application process (the production backend is Redis). Values are
// serialized []model.MonthDay lists keyed by ViewKey. Callers follow the
// cache-aside pattern: read first, fill on miss, and evict exact keys after
// mutations. Every write carries a TTL so a missed eviction or a lost sync
// message can only produce bounded staleness.
package cache

import (
	"context"
	"time"
)

// Store is the key/value contract used for cached views.
//
// Get reports (value, true, nil) on a hit and (nil, false, nil) on a clean
// miss; an error means the backend itself is unreachable, which callers treat
// as a miss and log. Del removes exact keys only; no wildcard deletes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

package domain

import (
	"context"
	"time"
)

// SeriesCache caches series entities so settlement-source enrichment hits
// the exchange at most once per series per TTL.
type SeriesCache interface {
	// Get returns the cached series, or ErrNotFound on a miss.
	Get(ctx context.Context, seriesTicker string) (Series, error)
	Set(ctx context.Context, series Series) error
}

// LockManager provides a run lock so overlapping scheduled runs cannot
// race the exposure ledger. Acquire returns ErrLockHeld when another run
// holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

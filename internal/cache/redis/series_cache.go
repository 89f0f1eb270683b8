package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/kalshibot/internal/domain"
)

const defaultSeriesTTL = 12 * time.Hour

// SeriesCache implements domain.SeriesCache using Redis string keys with
// JSON-serialized Series data. Series metadata (title, settlement sources)
// changes rarely, so a long TTL keeps repeat runs from re-fetching it on
// every candidate batch.
//
// Key schema:
//
//	series:{ticker} - JSON-encoded domain.Series
type SeriesCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSeriesCache creates a SeriesCache backed by the given Client. A zero ttl
// falls back to 12 hours.
func NewSeriesCache(c *Client, ttl time.Duration) *SeriesCache {
	if ttl <= 0 {
		ttl = defaultSeriesTTL
	}
	return &SeriesCache{rdb: c.Underlying(), ttl: ttl}
}

func seriesKey(ticker string) string { return "series:" + ticker }

// Set stores a Series in the cache.
func (sc *SeriesCache) Set(ctx context.Context, series domain.Series) error {
	data, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("redis: marshal series %s: %w", series.Ticker, err)
	}

	if err := sc.rdb.Set(ctx, seriesKey(series.Ticker), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set series %s: %w", series.Ticker, err)
	}
	return nil
}

// Get retrieves a Series by its ticker from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SeriesCache) Get(ctx context.Context, ticker string) (domain.Series, error) {
	data, err := sc.rdb.Get(ctx, seriesKey(ticker)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Series{}, domain.ErrNotFound
		}
		return domain.Series{}, fmt.Errorf("redis: get series %s: %w", ticker, err)
	}

	var series domain.Series
	if err := json.Unmarshal(data, &series); err != nil {
		return domain.Series{}, fmt.Errorf("redis: unmarshal series %s: %w", ticker, err)
	}
	return series, nil
}

// Compile-time interface check.
var _ domain.SeriesCache = (*SeriesCache)(nil)

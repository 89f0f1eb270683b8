// Package service orchestrates analysis runs: balance checks, market
// selection, prompt building, oracle calls, and execution.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quantfold/kalshibot/internal/domain"
)

// CachedSeriesSource resolves series metadata through a Redis-backed cache,
// falling back to the exchange on a miss. Cache failures degrade to direct
// exchange lookups; a broken cache must never block candidate enrichment.
type CachedSeriesSource struct {
	markets domain.MarketSource
	cache   domain.SeriesCache
	logger  *slog.Logger
}

// NewCachedSeriesSource creates a CachedSeriesSource. A nil cache disables
// caching entirely.
func NewCachedSeriesSource(markets domain.MarketSource, cache domain.SeriesCache, logger *slog.Logger) *CachedSeriesSource {
	return &CachedSeriesSource{
		markets: markets,
		cache:   cache,
		logger:  logger.With(slog.String("component", "series_source")),
	}
}

// GetSeries returns the series for a series ticker, consulting the cache
// first.
func (s *CachedSeriesSource) GetSeries(ctx context.Context, seriesTicker string) (domain.Series, error) {
	if s.cache != nil {
		series, err := s.cache.Get(ctx, seriesTicker)
		if err == nil {
			return series, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "series cache read failed",
				slog.String("series", seriesTicker),
				slog.String("error", err.Error()),
			)
		}
	}

	series, err := s.markets.GetSeries(ctx, seriesTicker)
	if err != nil {
		return domain.Series{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, series); err != nil {
			s.logger.WarnContext(ctx, "series cache write failed",
				slog.String("series", seriesTicker),
				slog.String("error", err.Error()),
			)
		}
	}

	return series, nil
}

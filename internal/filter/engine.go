// Package filter implements the market filtering and ranking pipeline: a
// strictly ordered funnel that turns a raw market listing into a small,
// risk-bounded, diversity-constrained candidate set.
package filter

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/quantfold/kalshibot/internal/domain"
)

// Policy holds the immutable filtering thresholds for one run. It is passed
// in explicitly so per-deployment variation never leaks through ambient
// state.
type Policy struct {
	// MinLead/MaxLead bound the close-time window relative to now. Markets
	// closing sooner carry stale-odds risk; later ones lock up capital.
	MinLead time.Duration
	MaxLead time.Duration
	// MinVolume is the trading-interest floor.
	MinVolume int64
	// MinYesPrice/MaxYesPrice is the tradable band; outside it the market
	// is usually right and there is no forecasting edge.
	MinYesPrice float64
	MaxYesPrice float64
	// MaxSpread is the yesAsk+noAsk ceiling; excess over 1.00 is fee load.
	MaxSpread float64
	// MaxBetsPerTicker/MaxBetsPerSeries are the exposure caps used by the
	// advisory pre-filter.
	MaxBetsPerTicker int
	MaxBetsPerSeries int
	// MaxPerSeries caps candidates per series prefix.
	MaxPerSeries int
	// MaxCandidates caps the final output length.
	MaxCandidates int
}

// ExposureCounter reads current bet counts from the exposure ledger.
type ExposureCounter interface {
	CountByTicker(ctx context.Context, ticker string) (int, error)
	CountBySeriesPrefix(ctx context.Context, prefix string) (int, error)
}

// SeriesSource resolves a series prefix to its series entity, typically a
// cache-backed wrapper over the exchange client.
type SeriesSource interface {
	GetSeries(ctx context.Context, seriesTicker string) (domain.Series, error)
}

// Engine runs the filtering pipeline. Given identical inputs, ledger state,
// and policy, its output is deterministic.
type Engine struct {
	policy   Policy
	gate     Gate
	exposure ExposureCounter
	series   SeriesSource
	logger   *slog.Logger
}

// New creates an Engine with the given policy and collaborators.
func New(policy Policy, gate Gate, exposure ExposureCounter, series SeriesSource, logger *slog.Logger) *Engine {
	return &Engine{
		policy:   policy,
		gate:     gate,
		exposure: exposure,
		series:   series,
		logger:   logger.With(slog.String("component", "filter")),
	}
}

// Run applies every pipeline stage in order and returns the enriched
// candidate set. An empty input or a run where no market survives yields an
// empty slice, never an error: "no candidates" is a valid outcome.
func (e *Engine) Run(ctx context.Context, now time.Time, markets []domain.Market) []domain.Market {
	e.logger.InfoContext(ctx, "filtering markets",
		slog.Int("input", len(markets)),
		slog.String("gate", e.gate.Name()),
	)

	survivors := e.selectWindow(now, markets)
	survivors = e.applyGates(survivors)
	survivors = e.filterExposure(ctx, survivors)
	e.rank(survivors)
	survivors = e.diversify(survivors)
	if len(survivors) > e.policy.MaxCandidates {
		survivors = survivors[:e.policy.MaxCandidates]
	}
	e.enrich(ctx, survivors)

	e.logger.InfoContext(ctx, "filtering complete", slog.Int("candidates", len(survivors)))
	return survivors
}

// selectWindow keeps markets whose close time falls inside
// [now+MinLead, now+MaxLead].
func (e *Engine) selectWindow(now time.Time, markets []domain.Market) []domain.Market {
	earliest := now.Add(e.policy.MinLead)
	latest := now.Add(e.policy.MaxLead)

	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if m.CloseTime.Before(earliest) || m.CloseTime.After(latest) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// applyGates runs the topicality gate, the volume floor, the price band,
// and the spread ceiling. Markets with missing or unparsable prices are
// dropped here, never crashing the pipeline.
func (e *Engine) applyGates(markets []domain.Market) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if !e.gate.Eligible(m) {
			continue
		}
		if m.Volume < e.policy.MinVolume {
			continue
		}
		if m.YesAsk == nil {
			continue
		}
		if *m.YesAsk < e.policy.MinYesPrice || *m.YesAsk > e.policy.MaxYesPrice {
			continue
		}
		spread, ok := m.Spread()
		if !ok || spread > e.policy.MaxSpread {
			continue
		}
		out = append(out, m)
	}
	return out
}

// filterExposure drops markets whose ticker or series already carries the
// maximum number of bets. This stage is advisory: the executor re-checks
// against the ledger immediately before placing an order. A ledger read
// failure here is logged and the check skipped for that market.
func (e *Engine) filterExposure(ctx context.Context, markets []domain.Market) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		n, err := e.exposure.CountByTicker(ctx, m.Ticker)
		if err != nil {
			e.logger.WarnContext(ctx, "exposure count unavailable, keeping market",
				slog.String("ticker", m.Ticker),
				slog.String("error", err.Error()),
			)
			out = append(out, m)
			continue
		}
		if n >= e.policy.MaxBetsPerTicker {
			e.logger.InfoContext(ctx, "skipping market at ticker exposure cap",
				slog.String("ticker", m.Ticker),
				slog.Int("bets", n),
				slog.Int("cap", e.policy.MaxBetsPerTicker),
			)
			continue
		}

		prefix := m.SeriesPrefix()
		sn, err := e.exposure.CountBySeriesPrefix(ctx, prefix)
		if err != nil {
			e.logger.WarnContext(ctx, "series exposure count unavailable, keeping market",
				slog.String("series", prefix),
				slog.String("error", err.Error()),
			)
			out = append(out, m)
			continue
		}
		if sn >= e.policy.MaxBetsPerSeries {
			e.logger.InfoContext(ctx, "skipping market at series exposure cap",
				slog.String("ticker", m.Ticker),
				slog.String("series", prefix),
				slog.Int("bets", sn),
				slog.Int("cap", e.policy.MaxBetsPerSeries),
			)
			continue
		}

		out = append(out, m)
	}
	return out
}

// rank sorts by volume descending, liquidity breaking ties, ticker as the
// final tiebreaker so the ordering is total and reproducible.
func (e *Engine) rank(markets []domain.Market) {
	sort.SliceStable(markets, func(i, j int) bool {
		if markets[i].Volume != markets[j].Volume {
			return markets[i].Volume > markets[j].Volume
		}
		if markets[i].Liquidity != markets[j].Liquidity {
			return markets[i].Liquidity > markets[j].Liquidity
		}
		return markets[i].Ticker < markets[j].Ticker
	})
}

// diversify walks the ranked list keeping at most MaxPerSeries markets per
// series prefix, so one volatile series cannot crowd out the candidate set.
func (e *Engine) diversify(markets []domain.Market) []domain.Market {
	perSeries := make(map[string]int, len(markets))
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		prefix := m.SeriesPrefix()
		if perSeries[prefix] >= e.policy.MaxPerSeries {
			continue
		}
		perSeries[prefix]++
		out = append(out, m)
	}
	return out
}

// enrich attaches each market's parent-series settlement sources, fetching
// each distinct series once. Fetch failures leave the sources empty; the
// candidate still goes forward.
func (e *Engine) enrich(ctx context.Context, markets []domain.Market) {
	fetched := make(map[string][]domain.SettlementSource)
	for i := range markets {
		prefix := markets[i].SeriesPrefix()
		sources, ok := fetched[prefix]
		if !ok {
			series, err := e.series.GetSeries(ctx, prefix)
			if err != nil {
				e.logger.WarnContext(ctx, "series lookup failed, leaving sources empty",
					slog.String("series", prefix),
					slog.String("error", err.Error()),
				)
				sources = nil
			} else {
				sources = series.SettlementSources
			}
			fetched[prefix] = sources
		}
		markets[i].SettlementSources = sources
	}
}

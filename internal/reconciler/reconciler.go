// Package reconciler advances previously placed bets from "open" to a
// terminal status by polling current market state. Terminal statuses are
// absorbing; ambiguous outcomes are left open for human review, never
// guessed.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfold/kalshibot/internal/domain"
)

// Stats summarizes one sweep.
type Stats struct {
	Checked int
	Updated int
	Skipped int
}

// Reconciler sweeps open bets against current market state.
type Reconciler struct {
	bets    domain.BetStore
	markets domain.MarketSource
	logger  *slog.Logger
}

// New creates a Reconciler.
func New(bets domain.BetStore, markets domain.MarketSource, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		bets:    bets,
		markets: markets,
		logger:  logger.With(slog.String("component", "reconciler")),
	}
}

// Sweep checks every open bet once. Dry-run bets never appear here: the
// store's ListOpen selects status "open" only. One bet's failure is logged
// and skipped without aborting the sweep.
func (r *Reconciler) Sweep(ctx context.Context) (Stats, error) {
	open, err := r.bets.ListOpen(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("reconciler: list open bets: %w", err)
	}
	if len(open) == 0 {
		r.logger.InfoContext(ctx, "no open bets to check")
		return Stats{}, nil
	}

	r.logger.InfoContext(ctx, "checking open bets", slog.Int("count", len(open)))

	var stats Stats
	for _, bet := range open {
		stats.Checked++

		market, err := r.markets.GetMarket(ctx, bet.Ticker)
		if err != nil {
			r.logger.WarnContext(ctx, "could not fetch market for bet, skipping",
				slog.String("bet_id", bet.ID),
				slog.String("ticker", bet.Ticker),
				slog.String("error", err.Error()),
			)
			stats.Skipped++
			continue
		}

		next, ok := Transition(bet, market)
		if !ok {
			if market.Status.Resolved() {
				// Resolved but unrecognized result: flag it, keep the bet
				// open rather than guessing an outcome.
				r.logger.WarnContext(ctx, "unknown settlement result, leaving bet open",
					slog.String("bet_id", bet.ID),
					slog.String("ticker", bet.Ticker),
					slog.String("result", market.Result),
				)
			}
			stats.Skipped++
			continue
		}

		if err := r.bets.UpdateStatus(ctx, bet.ID, next); err != nil {
			r.logger.ErrorContext(ctx, "failed to update bet status",
				slog.String("bet_id", bet.ID),
				slog.String("status", string(next)),
				slog.String("error", err.Error()),
			)
			stats.Skipped++
			continue
		}

		r.logger.InfoContext(ctx, "bet settled",
			slog.String("bet_id", bet.ID),
			slog.String("ticker", bet.Ticker),
			slog.String("side", string(bet.Side)),
			slog.String("status", string(next)),
		)
		stats.Updated++
	}

	return stats, nil
}

// Transition computes the terminal status for a bet given current market
// state. It returns false when no transition applies: the market is still
// trading, or it resolved with a result string the state machine does not
// recognize.
func Transition(bet domain.Bet, market domain.Market) (domain.BetStatus, bool) {
	if !market.Status.Resolved() {
		return "", false
	}

	switch strings.ToLower(strings.TrimSpace(market.Result)) {
	case "yes":
		if bet.Side == domain.BetSideYes {
			return domain.BetStatusWon, true
		}
		return domain.BetStatusLost, true
	case "no":
		if bet.Side == domain.BetSideNo {
			return domain.BetStatusWon, true
		}
		return domain.BetStatusLost, true
	case "void", "canceled", "cancelled", "refunded":
		return domain.BetStatusVoid, true
	case "":
		// Finalized with no binary result: fair-value settlement.
		if market.Status == domain.MarketStatusFinalized {
			return domain.BetStatusSettled, true
		}
		return "", false
	default:
		return "", false
	}
}

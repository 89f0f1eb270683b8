package domain

import "context"

// BetStore is the persistent exposure ledger. Bets are never deleted; a
// bet's status is the only field updated after insert.
type BetStore interface {
	// Insert persists a new bet and returns it with the store-assigned ID.
	Insert(ctx context.Context, bet Bet) (Bet, error)

	// UpdateStatus transitions a bet to the given status.
	UpdateStatus(ctx context.Context, id string, status BetStatus) error

	// ListOpen returns every bet with status "open": live positions
	// awaiting settlement. Dry-run bets are excluded by construction; the
	// reconciler must never see them. The same list doubles as portfolio
	// context for the analysis prompt.
	ListOpen(ctx context.Context) ([]Bet, error)

	// CountByTicker counts bets recorded against the exact ticker,
	// excluding dry runs. Used for the per-ticker exposure cap.
	CountByTicker(ctx context.Context, ticker string) (int, error)

	// CountBySeriesPrefix counts bets whose ticker belongs to the series,
	// excluding dry runs. Used for the per-series exposure cap.
	CountBySeriesPrefix(ctx context.Context, prefix string) (int, error)

	// ListRecent returns the most recently created bets, newest first,
	// across all statuses including dry runs. Used for run summaries.
	ListRecent(ctx context.Context, limit int) ([]Bet, error)
}

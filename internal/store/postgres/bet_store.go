package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/kalshibot/internal/domain"
)

const betColumns = `id, ticker, side, price, count, amount, status,
	portfolio_balance, fee, reasoning, confidence, title, subtitle, rules,
	prompt_version, created_at, updated_at`

// BetStore persists the bet ledger in PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

var _ domain.BetStore = (*BetStore)(nil)

// Insert records a new bet. A fresh ID and timestamps are assigned; the
// series prefix is derived from the ticker at write time so exposure counts
// never depend on parsing at read time.
func (s *BetStore) Insert(ctx context.Context, bet domain.Bet) (domain.Bet, error) {
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	bet.CreatedAt = now
	bet.UpdatedAt = now

	const query = `
		INSERT INTO bets (
			id, ticker, series_prefix, side, price, count, amount, status,
			portfolio_balance, fee, reasoning, confidence, title, subtitle,
			rules, prompt_version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := s.pool.Exec(ctx, query,
		bet.ID,
		bet.Ticker,
		domain.SeriesPrefix(bet.Ticker),
		string(bet.Side),
		bet.Price,
		bet.Count,
		bet.Amount,
		string(bet.Status),
		bet.PortfolioBalance,
		bet.Fee,
		bet.Reasoning,
		bet.Confidence,
		bet.Title,
		bet.Subtitle,
		bet.Rules,
		bet.PromptVersion,
		bet.CreatedAt,
		bet.UpdatedAt,
	)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: insert bet %s: %w", bet.Ticker, err)
	}

	return bet, nil
}

// UpdateStatus moves a bet to a new status.
func (s *BetStore) UpdateStatus(ctx context.Context, id string, status domain.BetStatus) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE bets SET status = $1, updated_at = NOW() WHERE id = $2",
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update bet %s status: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListOpen returns every live position awaiting settlement, oldest first.
func (s *BetStore) ListOpen(ctx context.Context) ([]domain.Bet, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM bets WHERE status = 'open' ORDER BY created_at ASC",
		betColumns,
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open bets: %w", err)
	}
	defer rows.Close()

	return scanBets(rows)
}

// CountByTicker counts real (non-dry-run) bets on a single market.
func (s *BetStore) CountByTicker(ctx context.Context, ticker string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM bets WHERE ticker = $1 AND status <> 'dry_run'",
		ticker,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count bets for %s: %w", ticker, err)
	}
	return count, nil
}

// CountBySeriesPrefix counts real (non-dry-run) bets across a whole series.
func (s *BetStore) CountBySeriesPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM bets WHERE series_prefix = $1 AND status <> 'dry_run'",
		prefix,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count bets for series %s: %w", prefix, err)
	}
	return count, nil
}

// ListRecent returns the newest bets first, all statuses included.
func (s *BetStore) ListRecent(ctx context.Context, limit int) ([]domain.Bet, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(
		"SELECT %s FROM bets ORDER BY created_at DESC LIMIT $1",
		betColumns,
	)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent bets: %w", err)
	}
	defer rows.Close()

	return scanBets(rows)
}

func scanBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		var (
			bet          domain.Bet
			side, status string
		)
		err := rows.Scan(
			&bet.ID,
			&bet.Ticker,
			&side,
			&bet.Price,
			&bet.Count,
			&bet.Amount,
			&status,
			&bet.PortfolioBalance,
			&bet.Fee,
			&bet.Reasoning,
			&bet.Confidence,
			&bet.Title,
			&bet.Subtitle,
			&bet.Rules,
			&bet.PromptVersion,
			&bet.CreatedAt,
			&bet.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet row: %w", err)
		}
		bet.Side = domain.BetSide(side)
		bet.Status = domain.BetStatus(status)
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bet rows: %w", err)
	}
	return bets, nil
}

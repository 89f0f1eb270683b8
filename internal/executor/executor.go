// Package executor turns a validated BET decision into a placed order with
// bounded size. It owns the authoritative exposure recheck: the filter
// stage's check is advisory, this one is load-bearing because ledger state
// may have changed between filtering and decision.
package executor

import (
	"context"
	"log/slog"
	"math"

	"github.com/quantfold/kalshibot/internal/domain"
)

// Code classifies the outcome of one Execute call. Guard rejections are
// expected, non-exceptional outcomes: they short-circuit with no side
// effects and no error state.
type Code string

const (
	// CodePlaced means a real order was submitted and the bet recorded.
	CodePlaced Code = "placed"
	// CodeDryRun means placement was simulated but bookkeeping completed.
	CodeDryRun Code = "dry_run"
	// CodeExposureCapped means the ticker already carries the maximum
	// number of bets.
	CodeExposureCapped Code = "exposure_capped"
	// CodeLedgerUnavailable means the exposure recheck could not be
	// performed; the guard fails closed.
	CodeLedgerUnavailable Code = "ledger_unavailable"
	// CodeInvalidPrice means the decision price was not positive.
	CodeInvalidPrice Code = "invalid_price"
	// CodePriceTooHigh means the stake cannot buy a single contract.
	CodePriceTooHigh Code = "price_too_high"
	// CodeOrderFailed means the exchange rejected or errored the order.
	CodeOrderFailed Code = "order_failed"
	// CodeRecordFailed means the order went through but the ledger insert
	// failed; needs operator attention.
	CodeRecordFailed Code = "record_failed"
)

// Outcome reports what Execute did. Bet is set only when a ledger record
// was written.
type Outcome struct {
	Code  Code
	Count int64
	Bet   *domain.Bet
}

// Placed reports whether an order (real or simulated) went through and was
// recorded.
func (o Outcome) Placed() bool {
	return o.Code == CodePlaced || o.Code == CodeDryRun
}

// Config holds the execution parameters.
type Config struct {
	// Stake is the nominal dollars spent per bet.
	Stake float64
	// MaxBetsPerTicker is the per-ticker exposure cap.
	MaxBetsPerTicker int
	// DryRun simulates order placement while keeping full bookkeeping.
	DryRun bool
	// PromptVersion is recorded on every bet for attribution.
	PromptVersion string
}

// Executor validates, sizes, places, and records bets.
type Executor struct {
	bets    domain.BetStore
	orders  domain.OrderPlacer
	balance domain.BalanceSource
	cfg     Config
	logger  *slog.Logger
}

// New creates an Executor with all required dependencies.
func New(bets domain.BetStore, orders domain.OrderPlacer, balance domain.BalanceSource, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		bets:    bets,
		orders:  orders,
		balance: balance,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Execute runs the guard pipeline for one BET decision against the market
// it targets. At most one order submission and one ledger insert happen per
// call; every abort path is an early return with no side effects.
func (e *Executor) Execute(ctx context.Context, d domain.Decision, m domain.Market) Outcome {
	// Authoritative exposure recheck against live ledger state.
	existing, err := e.bets.CountByTicker(ctx, d.Ticker)
	if err != nil {
		e.logger.WarnContext(ctx, "exposure recheck failed, refusing to place order",
			slog.String("ticker", d.Ticker),
			slog.String("error", err.Error()),
		)
		return Outcome{Code: CodeLedgerUnavailable}
	}
	if existing >= e.cfg.MaxBetsPerTicker {
		e.logger.WarnContext(ctx, "max exposure reached, skipping bet",
			slog.String("ticker", d.Ticker),
			slog.Int("existing", existing),
			slog.Int("cap", e.cfg.MaxBetsPerTicker),
		)
		return Outcome{Code: CodeExposureCapped}
	}

	// Sizing.
	if d.Price <= 0 {
		e.logger.WarnContext(ctx, "invalid decision price",
			slog.String("ticker", d.Ticker),
			slog.Float64("price", d.Price),
		)
		return Outcome{Code: CodeInvalidPrice}
	}
	count := int64(math.Floor(e.cfg.Stake / d.Price))
	if count < 1 {
		e.logger.WarnContext(ctx, "price too high for stake",
			slog.String("ticker", d.Ticker),
			slog.Float64("price", d.Price),
			slog.Float64("stake", e.cfg.Stake),
		)
		return Outcome{Code: CodePriceTooHigh}
	}

	e.logger.InfoContext(ctx, "executing bet",
		slog.String("ticker", d.Ticker),
		slog.String("side", string(d.Side)),
		slog.Float64("price", d.Price),
		slog.Int64("count", count),
		slog.Float64("total", float64(count)*d.Price),
		slog.Bool("dry_run", e.cfg.DryRun),
	)

	// Order placement (or simulation).
	var result domain.OrderResult
	if e.cfg.DryRun {
		result = domain.OrderResult{Status: "simulated", Simulated: true}
	} else {
		result, err = e.orders.PlaceOrder(ctx, d.Ticker, d.Side, count, d.Price)
		if err != nil {
			e.logger.ErrorContext(ctx, "order placement failed",
				slog.String("ticker", d.Ticker),
				slog.String("error", err.Error()),
			)
			return Outcome{Code: CodeOrderFailed, Count: count}
		}
	}

	// Post-trade telemetry, best effort.
	var fee *float64
	if !result.Simulated {
		if f := result.TotalFees(); f > 0 {
			fee = &f
		}
	}
	var portfolio *float64
	if bal, balErr := e.balance.GetBalance(ctx); balErr != nil {
		e.logger.WarnContext(ctx, "balance snapshot unavailable",
			slog.String("error", balErr.Error()))
	} else {
		total := bal.Total()
		portfolio = &total
		e.logger.InfoContext(ctx, "portfolio status",
			slog.Float64("cash", bal.Cash),
			slog.Float64("positions", bal.Positions),
			slog.Float64("total_equity", total),
		)
	}

	// Persist the bet.
	status := domain.BetStatusOpen
	if e.cfg.DryRun {
		status = domain.BetStatusDryRun
	}
	bet := domain.Bet{
		Ticker:           d.Ticker,
		Side:             d.Side,
		Price:            d.Price,
		Count:            count,
		Amount:           e.cfg.Stake,
		Status:           status,
		PortfolioBalance: portfolio,
		Fee:              fee,
		Reasoning:        d.Reasoning,
		Confidence:       d.Confidence,
		Title:            m.Title,
		Subtitle:         m.Subtitle,
		Rules:            m.ComposedRules(),
		PromptVersion:    e.cfg.PromptVersion,
	}
	inserted, err := e.bets.Insert(ctx, bet)
	if err != nil {
		e.logger.ErrorContext(ctx, "bet record insert failed",
			slog.String("ticker", d.Ticker),
			slog.String("error", err.Error()),
		)
		return Outcome{Code: CodeRecordFailed, Count: count}
	}

	code := CodePlaced
	if e.cfg.DryRun {
		code = CodeDryRun
	}
	return Outcome{Code: code, Count: count, Bet: &inserted}
}

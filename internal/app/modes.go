package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfold/kalshibot/internal/domain"
	"github.com/quantfold/kalshibot/internal/executor"
	"github.com/quantfold/kalshibot/internal/filter"
	"github.com/quantfold/kalshibot/internal/prompt"
	"github.com/quantfold/kalshibot/internal/reconciler"
	"github.com/quantfold/kalshibot/internal/service"
)

// runLockKey names the distributed lock held for the duration of a trading
// run, so overlapping cron invocations cannot double-spend.
const runLockKey = "trading-run"

// RunMode performs one full trading cycle under the run lock: settle
// anything resolvable, then analyze and possibly place a bet.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	unlock, err := deps.LockManager.Acquire(ctx, runLockKey, a.cfg.Redis.LockTTL.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.WarnContext(ctx, "another run is in progress, exiting")
			return nil
		}
		return fmt.Errorf("app: acquire run lock: %w", err)
	}
	defer unlock()

	// Settle first so exposure counts and portfolio context reflect
	// reality before any new bet is considered.
	if err := a.sweep(ctx, deps); err != nil {
		a.logger.WarnContext(ctx, "settlement sweep failed, continuing run",
			slog.String("error", err.Error()),
		)
	}

	return a.analyze(ctx, deps)
}

// AnalyzeMode runs the full analysis pipeline with order placement forced
// into simulation. No lock is taken: analyze cannot spend.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	return a.analyze(ctx, deps)
}

// ReconcileMode sweeps open bets against market settlement state and exits.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	return a.sweep(ctx, deps)
}

func (a *App) sweep(ctx context.Context, deps *Dependencies) error {
	rec := reconciler.New(deps.Bets, deps.Markets, a.logger)
	stats, err := rec.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("app: reconcile: %w", err)
	}
	a.logger.InfoContext(ctx, "reconcile sweep complete",
		slog.Int("checked", stats.Checked),
		slog.Int("updated", stats.Updated),
		slog.Int("skipped", stats.Skipped),
	)
	a.logRecentRecord(ctx, deps)
	return nil
}

// logRecentRecord summarizes the latest ledger entries after a sweep.
// Best effort; a read failure never fails the mode.
func (a *App) logRecentRecord(ctx context.Context, deps *Dependencies) {
	recent, err := deps.Bets.ListRecent(ctx, 20)
	if err != nil {
		a.logger.WarnContext(ctx, "could not read recent bets",
			slog.String("error", err.Error()),
		)
		return
	}
	tally := map[domain.BetStatus]int{}
	for _, bet := range recent {
		tally[bet.Status]++
	}
	a.logger.InfoContext(ctx, "recent ledger record",
		slog.Int("bets", len(recent)),
		slog.Int("open", tally[domain.BetStatusOpen]),
		slog.Int("won", tally[domain.BetStatusWon]),
		slog.Int("lost", tally[domain.BetStatusLost]),
		slog.Int("void", tally[domain.BetStatusVoid]),
		slog.Int("settled", tally[domain.BetStatusSettled]),
		slog.Int("dry_run", tally[domain.BetStatusDryRun]),
	)
}

func (a *App) analyze(ctx context.Context, deps *Dependencies) error {
	gate, err := a.buildGate()
	if err != nil {
		return err
	}

	engine := filter.New(filter.Policy{
		MinLead:          a.cfg.Filter.MinLead.Duration,
		MaxLead:          a.cfg.Filter.MaxLead.Duration,
		MinVolume:        a.cfg.Filter.MinVolume,
		MinYesPrice:      a.cfg.Filter.MinYesPrice,
		MaxYesPrice:      a.cfg.Filter.MaxYesPrice,
		MaxSpread:        a.cfg.Filter.MaxSpread,
		MaxBetsPerTicker: a.cfg.Trading.MaxBetsPerTicker,
		MaxBetsPerSeries: a.cfg.Trading.MaxBetsPerSeries,
		MaxPerSeries:     a.cfg.Filter.MaxPerSeries,
		MaxCandidates:    a.cfg.Filter.MaxCandidates,
	}, gate, deps.Bets, service.NewCachedSeriesSource(deps.Markets, deps.SeriesCache, a.logger), a.logger)

	builder, err := prompt.NewBuilder(a.cfg.Trading.PromptVersion)
	if err != nil {
		return fmt.Errorf("app: prompt builder: %w", err)
	}

	exec := executor.New(deps.Bets, deps.Orders, deps.Balance, executor.Config{
		Stake:            a.cfg.Trading.Stake,
		MaxBetsPerTicker: a.cfg.Trading.MaxBetsPerTicker,
		DryRun:           a.dryRun(),
		PromptVersion:    a.cfg.Trading.PromptVersion,
	}, a.logger)

	svc := service.NewAnalysisService(
		deps.Markets,
		deps.Bets,
		deps.Balance,
		deps.Oracle,
		engine,
		builder,
		exec,
		deps.Archiver,
		service.AnalysisConfig{
			MinLead:         a.cfg.Filter.MinLead.Duration,
			MaxLead:         a.cfg.Filter.MaxLead.Duration,
			MinBalanceCents: a.cfg.Trading.MinBalanceCents,
			Mode:            strings.ToLower(a.cfg.Mode),
		},
		a.logger,
	)

	result, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("app: analysis run: %w", err)
	}
	a.logger.InfoContext(ctx, "analysis run complete",
		slog.String("run_id", result.RunID),
		slog.String("result", result.Code),
		slog.Int("candidates", result.Candidates),
	)
	return nil
}

func (a *App) buildGate() (filter.Gate, error) {
	switch strings.ToLower(a.cfg.Filter.Gate) {
	case "prefix":
		return filter.NewPrefixGate(a.cfg.Filter.AllowPrefixes), nil
	case "smart":
		return filter.NewSmartGate(filter.SmartGateConfig{
			AllowPrefixes:  a.cfg.Filter.AllowPrefixes,
			DenyKeywords:   a.cfg.Filter.DenyKeywords,
			BanPrefixes:    a.cfg.Filter.BanPrefixes,
			VolumeOverride: a.cfg.Filter.VolumeOverride,
		}), nil
	default:
		return nil, fmt.Errorf("app: unknown gate %q", a.cfg.Filter.Gate)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	s3blob "github.com/quantfold/kalshibot/internal/blob/s3"
	"github.com/quantfold/kalshibot/internal/domain"
	"github.com/quantfold/kalshibot/internal/executor"
	"github.com/quantfold/kalshibot/internal/filter"
	"github.com/quantfold/kalshibot/internal/parser"
	"github.com/quantfold/kalshibot/internal/prompt"
)

// Result codes for a completed analysis run.
const (
	// ResultBetPlaced means a decision was executed and recorded.
	ResultBetPlaced = "bet_placed"
	// ResultPass means the oracle explicitly declined to trade.
	ResultPass = "pass"
	// ResultNoCandidates means filtering left nothing worth asking about.
	ResultNoCandidates = "no_candidates"
	// ResultBalanceFloor means account cash was below the configured floor.
	ResultBalanceFloor = "balance_floor"
	// ResultNoDecision means every configured oracle model was tried and
	// none produced output.
	ResultNoDecision = "no_decision"
	// ResultUnparsableDecision means the oracle responded but no decision
	// could be extracted from its output.
	ResultUnparsableDecision = "unparsable_decision"
	// ResultUnknownTicker means the oracle named a ticker outside the
	// candidate set it was shown.
	ResultUnknownTicker = "unknown_ticker"
	// ResultExecutionDeclined means the execution guard refused the trade.
	ResultExecutionDeclined = "execution_declined"
)

// AnalysisConfig holds the run-level tunables for the analysis service.
type AnalysisConfig struct {
	// MinLead and MaxLead bound how far in the future candidate markets
	// may close.
	MinLead time.Duration
	MaxLead time.Duration
	// MinBalanceCents aborts the run when account cash falls below this
	// floor. Zero disables the check.
	MinBalanceCents int64
	// Mode is recorded on run artifacts ("run" or "analyze").
	Mode string
}

// RunResult summarizes a completed analysis run.
type RunResult struct {
	RunID      string
	Code       string
	Candidates int
	Decision   *domain.Decision
	Bet        *domain.Bet
}

// AnalysisService drives one end-to-end trading run: sweep-adjacent balance
// checks, market listing, filtering, prompt building, the oracle call,
// decision parsing, and execution. Artifacts from each run are archived to
// blob storage on a best-effort basis.
type AnalysisService struct {
	markets  domain.MarketSource
	bets     domain.BetStore
	balance  domain.BalanceSource
	oracle   domain.Oracle
	engine   *filter.Engine
	builder  *prompt.Builder
	exec     *executor.Executor
	archiver *s3blob.RunArchiver
	cfg      AnalysisConfig
	logger   *slog.Logger
}

// NewAnalysisService creates an AnalysisService with all required
// dependencies. The archiver may be nil, in which case no artifacts are
// written.
func NewAnalysisService(
	markets domain.MarketSource,
	bets domain.BetStore,
	balance domain.BalanceSource,
	oracle domain.Oracle,
	engine *filter.Engine,
	builder *prompt.Builder,
	exec *executor.Executor,
	archiver *s3blob.RunArchiver,
	cfg AnalysisConfig,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		markets:  markets,
		bets:     bets,
		balance:  balance,
		oracle:   oracle,
		engine:   engine,
		builder:  builder,
		exec:     exec,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "analysis")),
	}
}

// Run executes one full analysis cycle. Declining outcomes (no candidates,
// oracle pass, guard refusal) are normal results, not errors; an error is
// returned only when the run could not complete at all.
func (s *AnalysisService) Run(ctx context.Context) (RunResult, error) {
	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	result := RunResult{RunID: runID}

	logger := s.logger.With(slog.String("run_id", runID))

	if s.cfg.MinBalanceCents > 0 {
		bal, err := s.balance.GetBalance(ctx)
		if err != nil {
			return result, fmt.Errorf("analysis: balance check: %w", err)
		}
		cashCents := int64(bal.Cash * 100)
		if cashCents < s.cfg.MinBalanceCents {
			logger.WarnContext(ctx, "account balance below floor, aborting run",
				slog.Int64("cash_cents", cashCents),
				slog.Int64("floor_cents", s.cfg.MinBalanceCents),
			)
			result.Code = ResultBalanceFloor
			s.archiveOutcome(ctx, runID, startedAt, result)
			return result, nil
		}
	}

	now := time.Now().UTC()
	markets, err := s.markets.ListMarkets(ctx, domain.MarketFilter{
		MinCloseTime: now.Add(s.cfg.MinLead),
		MaxCloseTime: now.Add(s.cfg.MaxLead),
	})
	if err != nil {
		return result, fmt.Errorf("analysis: list markets: %w", err)
	}
	logger.InfoContext(ctx, "fetched market window", slog.Int("markets", len(markets)))

	candidates := s.engine.Run(ctx, now, markets)
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		logger.InfoContext(ctx, "no eligible candidates, nothing to analyze")
		result.Code = ResultNoCandidates
		s.archiveOutcome(ctx, runID, startedAt, result)
		return result, nil
	}

	// Portfolio context is advisory: a ledger read failure here degrades
	// the prompt but does not abort the run. The executor re-reads the
	// ledger before placing anything.
	activeBets, err := s.bets.ListOpen(ctx)
	if err != nil {
		logger.WarnContext(ctx, "listing open bets failed, prompting without portfolio",
			slog.String("error", err.Error()),
		)
		activeBets = nil
	}

	promptText, ok := s.builder.Build(candidates, activeBets, now)
	if !ok {
		logger.InfoContext(ctx, "no formattable candidates, nothing to analyze")
		result.Code = ResultNoCandidates
		s.archiveOutcome(ctx, runID, startedAt, result)
		return result, nil
	}
	s.archivePrompt(ctx, runID, startedAt, promptText)

	response, err := s.oracle.Generate(ctx, promptText)
	if err != nil {
		// An exhausted oracle is a run with no trade, not a failed run.
		if errors.Is(err, domain.ErrNoDecision) {
			logger.WarnContext(ctx, "oracle produced no decision",
				slog.String("error", err.Error()),
			)
			result.Code = ResultNoDecision
			s.archiveOutcome(ctx, runID, startedAt, result)
			return result, nil
		}
		return result, fmt.Errorf("analysis: oracle: %w", err)
	}
	s.archiveResponse(ctx, runID, startedAt, response)

	decision, err := parser.Parse(response)
	if err != nil {
		logger.WarnContext(ctx, "oracle output could not be parsed",
			slog.String("error", err.Error()),
		)
		result.Code = ResultUnparsableDecision
		s.archiveOutcome(ctx, runID, startedAt, result)
		return result, nil
	}
	result.Decision = &decision

	if decision.Kind == domain.DecisionPass {
		logger.InfoContext(ctx, "oracle passed on all candidates",
			slog.String("reasoning", decision.Reasoning),
		)
		result.Code = ResultPass
		s.archiveOutcome(ctx, runID, startedAt, result)
		return result, nil
	}

	market, found := findCandidate(candidates, decision.Ticker)
	if !found {
		logger.WarnContext(ctx, "oracle named a ticker outside the candidate set",
			slog.String("ticker", decision.Ticker),
		)
		result.Code = ResultUnknownTicker
		s.archiveOutcome(ctx, runID, startedAt, result)
		return result, nil
	}

	outcome := s.exec.Execute(ctx, decision, market)
	if outcome.Placed() {
		result.Code = ResultBetPlaced
		result.Bet = outcome.Bet
		logger.InfoContext(ctx, "run complete, bet recorded",
			slog.String("ticker", outcome.Bet.Ticker),
			slog.String("side", string(outcome.Bet.Side)),
			slog.Int64("count", outcome.Count),
			slog.String("status", string(outcome.Bet.Status)),
		)
	} else {
		result.Code = ResultExecutionDeclined
		logger.InfoContext(ctx, "run complete, execution declined",
			slog.String("ticker", decision.Ticker),
			slog.String("code", string(outcome.Code)),
		)
	}
	s.archiveOutcome(ctx, runID, startedAt, result)
	return result, nil
}

func findCandidate(candidates []domain.Market, ticker string) (domain.Market, bool) {
	for _, m := range candidates {
		if m.Ticker == ticker {
			return m, true
		}
	}
	return domain.Market{}, false
}

func (s *AnalysisService) archivePrompt(ctx context.Context, runID string, at time.Time, text string) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchivePrompt(ctx, runID, at, text); err != nil {
		s.logger.WarnContext(ctx, "archiving prompt failed", slog.String("error", err.Error()))
	}
}

func (s *AnalysisService) archiveResponse(ctx context.Context, runID string, at time.Time, text string) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveResponse(ctx, runID, at, text); err != nil {
		s.logger.WarnContext(ctx, "archiving response failed", slog.String("error", err.Error()))
	}
}

func (s *AnalysisService) archiveOutcome(ctx context.Context, runID string, at time.Time, result RunResult) {
	if s.archiver == nil {
		return
	}
	outcome := s3blob.RunOutcome{
		RunID:         runID,
		Mode:          s.cfg.Mode,
		PromptVersion: s.builder.Version(),
		Candidates:    result.Candidates,
		Decision:      result.Decision,
		Bet:           result.Bet,
		Code:          result.Code,
		StartedAt:     at,
		FinishedAt:    time.Now().UTC(),
	}
	if err := s.archiver.ArchiveOutcome(ctx, runID, at, outcome); err != nil {
		s.logger.WarnContext(ctx, "archiving outcome failed", slog.String("error", err.Error()))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quantfold/kalshibot/internal/domain"
	"github.com/quantfold/kalshibot/internal/executor"
	"github.com/quantfold/kalshibot/internal/filter"
	"github.com/quantfold/kalshibot/internal/prompt"
)

type fakeExchange struct {
	markets   []domain.Market
	series    map[string]domain.Series
	balance   domain.Balance
	orders    int
	seriesErr error
}

func (f *fakeExchange) ListMarkets(context.Context, domain.MarketFilter) ([]domain.Market, error) {
	return f.markets, nil
}

func (f *fakeExchange) GetMarket(_ context.Context, ticker string) (domain.Market, error) {
	for _, m := range f.markets {
		if m.Ticker == ticker {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeExchange) GetSeries(_ context.Context, ticker string) (domain.Series, error) {
	if f.seriesErr != nil {
		return domain.Series{}, f.seriesErr
	}
	return f.series[ticker], nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, _ string, _ domain.BetSide, _ int64, _ float64) (domain.OrderResult, error) {
	f.orders++
	return domain.OrderResult{OrderID: "o-1", Status: "executed"}, nil
}

func (f *fakeExchange) GetBalance(context.Context) (domain.Balance, error) {
	return f.balance, nil
}

type memBetStore struct {
	bets []domain.Bet
}

func (s *memBetStore) Insert(_ context.Context, bet domain.Bet) (domain.Bet, error) {
	bet.ID = "bet-1"
	s.bets = append(s.bets, bet)
	return bet, nil
}

func (s *memBetStore) UpdateStatus(context.Context, string, domain.BetStatus) error { return nil }

func (s *memBetStore) ListOpen(context.Context) ([]domain.Bet, error) {
	var open []domain.Bet
	for _, b := range s.bets {
		if b.Status == domain.BetStatusOpen {
			open = append(open, b)
		}
	}
	return open, nil
}

func (s *memBetStore) CountByTicker(_ context.Context, ticker string) (int, error) {
	n := 0
	for _, b := range s.bets {
		if b.Ticker == ticker && b.Status != domain.BetStatusDryRun {
			n++
		}
	}
	return n, nil
}

func (s *memBetStore) CountBySeriesPrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, b := range s.bets {
		if domain.SeriesPrefix(b.Ticker) == prefix && b.Status != domain.BetStatusDryRun {
			n++
		}
	}
	return n, nil
}

func (s *memBetStore) ListRecent(_ context.Context, limit int) ([]domain.Bet, error) {
	if limit > 0 && len(s.bets) > limit {
		return s.bets[len(s.bets)-limit:], nil
	}
	return s.bets, nil
}

type fakeOracle struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeOracle) Generate(_ context.Context, p string) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.response, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fp(v float64) *float64 { return &v }

func candidate(ticker string) domain.Market {
	return domain.Market{
		Ticker:    ticker,
		Title:     "Test " + ticker,
		Status:    domain.MarketStatusOpen,
		YesAsk:    fp(0.40),
		NoAsk:     fp(0.63),
		Volume:    500,
		CloseTime: time.Now().Add(72 * time.Hour),
	}
}

func newService(t *testing.T, exch *fakeExchange, bets *memBetStore, oracle *fakeOracle, dryRun bool) *AnalysisService {
	t.Helper()

	logger := testLogger()
	engine := filter.New(filter.Policy{
		MinLead:          24 * time.Hour,
		MaxLead:          14 * 24 * time.Hour,
		MinVolume:        50,
		MinYesPrice:      0.15,
		MaxYesPrice:      0.85,
		MaxSpread:        1.08,
		MaxBetsPerTicker: 2,
		MaxBetsPerSeries: 4,
		MaxPerSeries:     2,
		MaxCandidates:    15,
	}, filter.NewPrefixGate([]string{"KX"}), bets, NewCachedSeriesSource(exch, nil, logger), logger)

	builder, err := prompt.NewBuilder("v4")
	if err != nil {
		t.Fatalf("prompt builder: %v", err)
	}

	exec := executor.New(bets, exch, exch, executor.Config{
		Stake:            4.00,
		MaxBetsPerTicker: 2,
		DryRun:           dryRun,
		PromptVersion:    "v4",
	}, logger)

	return NewAnalysisService(exch, bets, exch, oracle, engine, builder, exec, nil, AnalysisConfig{
		MinLead:         24 * time.Hour,
		MaxLead:         14 * 24 * time.Hour,
		MinBalanceCents: 500,
		Mode:            "run",
	}, logger)
}

func TestRunPlacesBet(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-WICKED-95")},
		balance: domain.Balance{Cash: 50, Positions: 8},
	}
	bets := &memBetStore{}
	oracle := &fakeOracle{response: `{"ticker": "KXRT-WICKED-95", "side": "YES", "price": 0.40, "reasoning": "edge"}`}

	svc := newService(t, exch, bets, oracle, false)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Code != ResultBetPlaced {
		t.Fatalf("expected bet_placed, got %s", result.Code)
	}
	if exch.orders != 1 {
		t.Errorf("expected one exchange order, got %d", exch.orders)
	}
	if len(bets.bets) != 1 || bets.bets[0].Status != domain.BetStatusOpen {
		t.Errorf("expected one open bet, got %+v", bets.bets)
	}
	if result.Bet == nil || result.Bet.Count != 10 { // floor(4.00 / 0.40)
		t.Errorf("unexpected bet sizing: %+v", result.Bet)
	}
}

func TestRunAbortsBelowBalanceFloor(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-A")},
		balance: domain.Balance{Cash: 3.00}, // 300 cents < 500 floor
	}
	oracle := &fakeOracle{}

	svc := newService(t, exch, &memBetStore{}, oracle, false)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Code != ResultBalanceFloor {
		t.Fatalf("expected balance_floor, got %s", result.Code)
	}
	if len(oracle.prompts) != 0 {
		t.Error("the oracle must not be consulted below the balance floor")
	}
}

func TestRunNoCandidates(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{{Ticker: "OTHER-A", Volume: 500, CloseTime: time.Now().Add(72 * time.Hour), YesAsk: fp(0.4), NoAsk: fp(0.6)}},
		balance: domain.Balance{Cash: 50},
	}
	oracle := &fakeOracle{}

	svc := newService(t, exch, &memBetStore{}, oracle, false)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Code != ResultNoCandidates {
		t.Fatalf("expected no_candidates, got %s", result.Code)
	}
	if len(oracle.prompts) != 0 {
		t.Error("no prompt should be sent without candidates")
	}
}

func TestRunOraclePass(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-A")},
		balance: domain.Balance{Cash: 50},
	}
	oracle := &fakeOracle{response: `{"decision": "PASS", "reasoning": "no edge"}`}

	svc := newService(t, exch, &memBetStore{}, oracle, false)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Code != ResultPass {
		t.Fatalf("expected pass, got %s", result.Code)
	}
	if exch.orders != 0 {
		t.Error("PASS must not place orders")
	}
}

func TestRunRejectsUnknownTicker(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-A")},
		balance: domain.Balance{Cash: 50},
	}
	oracle := &fakeOracle{response: `{"ticker": "KXRT-HALLUCINATED", "side": "YES", "price": 0.4}`}

	svc := newService(t, exch, &memBetStore{}, oracle, false)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Code != ResultUnknownTicker {
		t.Fatalf("expected unknown_ticker, got %s", result.Code)
	}
	if exch.orders != 0 {
		t.Error("hallucinated tickers must not reach the exchange")
	}
}

func TestRunDryRunNeverOrders(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-A")},
		balance: domain.Balance{Cash: 50},
	}
	bets := &memBetStore{}
	oracle := &fakeOracle{response: `{"ticker": "KXRT-A", "side": "NO", "price": 0.50}`}

	svc := newService(t, exch, bets, oracle, true)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Code != ResultBetPlaced {
		t.Fatalf("expected bet_placed (dry), got %s", result.Code)
	}
	if exch.orders != 0 {
		t.Error("dry run must not hit the exchange")
	}
	if len(bets.bets) != 1 || bets.bets[0].Status != domain.BetStatusDryRun {
		t.Errorf("expected one dry_run bet, got %+v", bets.bets)
	}
}

func TestRunExhaustedOracleIsNotFatal(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-A")},
		balance: domain.Balance{Cash: 50},
	}
	oracle := &fakeOracle{err: fmt.Errorf("gemini: %w", domain.ErrNoDecision)}

	svc := newService(t, exch, &memBetStore{}, oracle, false)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("an exhausted oracle must not fail the run: %v", err)
	}
	if result.Code != ResultNoDecision {
		t.Fatalf("expected no_decision, got %s", result.Code)
	}
	if exch.orders != 0 {
		t.Error("no decision must not place orders")
	}
}

func TestRunUnparsableDecisionIsNotFatal(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-A")},
		balance: domain.Balance{Cash: 50},
	}
	oracle := &fakeOracle{response: "I cannot commit to a trade right now."}

	svc := newService(t, exch, &memBetStore{}, oracle, false)
	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unparsable output must not fail the run: %v", err)
	}
	if result.Code != ResultUnparsableDecision {
		t.Fatalf("expected unparsable_decision, got %s", result.Code)
	}
	if exch.orders != 0 {
		t.Error("unparsable output must not place orders")
	}
}

func TestRunOracleTransportFailurePropagates(t *testing.T) {
	exch := &fakeExchange{
		markets: []domain.Market{candidate("KXRT-A")},
		balance: domain.Balance{Cash: 50},
	}
	oracleErr := errors.New("connection reset")
	oracle := &fakeOracle{err: oracleErr}

	svc := newService(t, exch, &memBetStore{}, oracle, false)
	if _, err := svc.Run(context.Background()); !errors.Is(err, oracleErr) {
		t.Fatalf("expected transport error to propagate, got %v", err)
	}
}

func TestCachedSeriesSourceFallsBackOnMiss(t *testing.T) {
	exch := &fakeExchange{series: map[string]domain.Series{
		"KXRT": {Ticker: "KXRT", SettlementSources: []domain.SettlementSource{{Name: "RT"}}},
	}}
	src := NewCachedSeriesSource(exch, nil, testLogger())

	series, err := src.GetSeries(context.Background(), "KXRT")
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if len(series.SettlementSources) != 1 {
		t.Errorf("unexpected series: %+v", series)
	}
}

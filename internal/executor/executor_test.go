package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/quantfold/kalshibot/internal/domain"
)

type fakeBetStore struct {
	countByTicker int
	countErr      error
	insertErr     error
	inserted      []domain.Bet
}

func (f *fakeBetStore) Insert(_ context.Context, bet domain.Bet) (domain.Bet, error) {
	if f.insertErr != nil {
		return domain.Bet{}, f.insertErr
	}
	bet.ID = "bet-1"
	f.inserted = append(f.inserted, bet)
	return bet, nil
}

func (f *fakeBetStore) UpdateStatus(context.Context, string, domain.BetStatus) error {
	return nil
}

func (f *fakeBetStore) ListOpen(context.Context) ([]domain.Bet, error) {
	return nil, nil
}

func (f *fakeBetStore) CountByTicker(context.Context, string) (int, error) {
	return f.countByTicker, f.countErr
}

func (f *fakeBetStore) ListRecent(context.Context, int) ([]domain.Bet, error) {
	return f.inserted, nil
}

func (f *fakeBetStore) CountBySeriesPrefix(context.Context, string) (int, error) {
	return 0, nil
}

type fakeOrderPlacer struct {
	result domain.OrderResult
	err    error
	calls  int
}

func (f *fakeOrderPlacer) PlaceOrder(_ context.Context, _ string, _ domain.BetSide, count int64, _ float64) (domain.OrderResult, error) {
	f.calls++
	if f.err != nil {
		return domain.OrderResult{}, f.err
	}
	return f.result, nil
}

type fakeBalance struct {
	bal domain.Balance
	err error
}

func (f *fakeBalance) GetBalance(context.Context) (domain.Balance, error) {
	return f.bal, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Stake:            4.00,
		MaxBetsPerTicker: 2,
		PromptVersion:    "v4",
	}
}

func decision(price float64) domain.Decision {
	return domain.Decision{
		Kind:       domain.DecisionBet,
		Ticker:     "KXRT-WICKED-95",
		Side:       domain.BetSideYes,
		Price:      price,
		Reasoning:  "edge",
		Confidence: "high",
	}
}

func TestExecuteSizesByStake(t *testing.T) {
	bets := &fakeBetStore{}
	orders := &fakeOrderPlacer{result: domain.OrderResult{OrderID: "o-1", Status: "executed", TakerFees: 0.07}}
	e := New(bets, orders, &fakeBalance{bal: domain.Balance{Cash: 50, Positions: 10}}, testConfig(), testLogger())

	out := e.Execute(context.Background(), decision(0.30), domain.Market{Ticker: "KXRT-WICKED-95", Title: "Wicked 95%+"})
	if out.Code != CodePlaced {
		t.Fatalf("expected placed, got %s", out.Code)
	}
	if out.Count != 13 { // floor(4.00 / 0.30)
		t.Errorf("expected 13 contracts, got %d", out.Count)
	}
	if orders.calls != 1 {
		t.Errorf("expected one order, got %d", orders.calls)
	}
	if len(bets.inserted) != 1 {
		t.Fatalf("expected one recorded bet, got %d", len(bets.inserted))
	}
	bet := bets.inserted[0]
	if bet.Status != domain.BetStatusOpen {
		t.Errorf("expected open status, got %s", bet.Status)
	}
	if bet.Fee == nil || *bet.Fee != 0.07 {
		t.Errorf("expected recorded fee 0.07, got %v", bet.Fee)
	}
	if bet.PortfolioBalance == nil || *bet.PortfolioBalance != 60 {
		t.Errorf("expected total equity snapshot 60, got %v", bet.PortfolioBalance)
	}
	if bet.PromptVersion != "v4" {
		t.Errorf("expected prompt version recorded, got %q", bet.PromptVersion)
	}
}

func TestExecutePriceTooHigh(t *testing.T) {
	orders := &fakeOrderPlacer{}
	e := New(&fakeBetStore{}, orders, &fakeBalance{}, testConfig(), testLogger())

	out := e.Execute(context.Background(), decision(4.01), domain.Market{})
	if out.Code != CodePriceTooHigh {
		t.Fatalf("expected price_too_high, got %s", out.Code)
	}
	if orders.calls != 0 {
		t.Error("no order may be placed when the stake buys zero contracts")
	}
}

func TestExecuteInvalidPrice(t *testing.T) {
	e := New(&fakeBetStore{}, &fakeOrderPlacer{}, &fakeBalance{}, testConfig(), testLogger())

	for _, price := range []float64{0, -0.5} {
		out := e.Execute(context.Background(), decision(price), domain.Market{})
		if out.Code != CodeInvalidPrice {
			t.Errorf("price %v: expected invalid_price, got %s", price, out.Code)
		}
	}
}

func TestExecuteExposureCap(t *testing.T) {
	bets := &fakeBetStore{countByTicker: 2}
	orders := &fakeOrderPlacer{}
	e := New(bets, orders, &fakeBalance{}, testConfig(), testLogger())

	out := e.Execute(context.Background(), decision(0.30), domain.Market{})
	if out.Code != CodeExposureCapped {
		t.Fatalf("expected exposure_capped, got %s", out.Code)
	}
	if orders.calls != 0 {
		t.Error("capped tickers must not receive orders")
	}
}

func TestExecuteFailsClosedOnLedgerError(t *testing.T) {
	bets := &fakeBetStore{countErr: errors.New("ledger down")}
	orders := &fakeOrderPlacer{}
	e := New(bets, orders, &fakeBalance{}, testConfig(), testLogger())

	out := e.Execute(context.Background(), decision(0.30), domain.Market{})
	if out.Code != CodeLedgerUnavailable {
		t.Fatalf("expected ledger_unavailable, got %s", out.Code)
	}
	if orders.calls != 0 {
		t.Error("an unreadable ledger must block order placement")
	}
}

func TestExecuteDryRun(t *testing.T) {
	bets := &fakeBetStore{}
	orders := &fakeOrderPlacer{}
	cfg := testConfig()
	cfg.DryRun = true
	e := New(bets, orders, &fakeBalance{bal: domain.Balance{Cash: 50}}, cfg, testLogger())

	out := e.Execute(context.Background(), decision(0.40), domain.Market{Title: "T"})
	if out.Code != CodeDryRun {
		t.Fatalf("expected dry_run, got %s", out.Code)
	}
	if !out.Placed() {
		t.Error("dry-run outcomes count as placed for reporting")
	}
	if orders.calls != 0 {
		t.Error("dry run must never reach the exchange")
	}
	if len(bets.inserted) != 1 {
		t.Fatalf("dry run must still record the bet")
	}
	bet := bets.inserted[0]
	if bet.Status != domain.BetStatusDryRun {
		t.Errorf("expected dry_run status, got %s", bet.Status)
	}
	if bet.Fee != nil {
		t.Errorf("simulated orders carry no fee, got %v", bet.Fee)
	}
}

func TestExecuteOrderFailure(t *testing.T) {
	bets := &fakeBetStore{}
	orders := &fakeOrderPlacer{err: errors.New("insufficient funds")}
	e := New(bets, orders, &fakeBalance{}, testConfig(), testLogger())

	out := e.Execute(context.Background(), decision(0.30), domain.Market{})
	if out.Code != CodeOrderFailed {
		t.Fatalf("expected order_failed, got %s", out.Code)
	}
	if len(bets.inserted) != 0 {
		t.Error("failed orders must not be recorded")
	}
}

func TestExecuteRecordFailure(t *testing.T) {
	bets := &fakeBetStore{insertErr: errors.New("insert failed")}
	orders := &fakeOrderPlacer{result: domain.OrderResult{OrderID: "o-1", Status: "executed"}}
	e := New(bets, orders, &fakeBalance{}, testConfig(), testLogger())

	out := e.Execute(context.Background(), decision(0.30), domain.Market{})
	if out.Code != CodeRecordFailed {
		t.Fatalf("expected record_failed, got %s", out.Code)
	}
	if out.Count != 13 {
		t.Errorf("record_failed should still report the order size, got %d", out.Count)
	}
}

func TestExecuteComposesRules(t *testing.T) {
	bets := &fakeBetStore{}
	orders := &fakeOrderPlacer{result: domain.OrderResult{Status: "executed"}}
	e := New(bets, orders, &fakeBalance{}, testConfig(), testLogger())

	m := domain.Market{
		Ticker:       "KXRT-WICKED-95",
		RulesPrimary: "Resolves YES if the score is 95 or higher.",
		SettlementSources: []domain.SettlementSource{
			{Name: "Rotten Tomatoes"},
		},
	}
	out := e.Execute(context.Background(), decision(0.30), m)
	if out.Code != CodePlaced {
		t.Fatalf("expected placed, got %s", out.Code)
	}
	want := "Resolves YES if the score is 95 or higher. Outcome verified from Rotten Tomatoes."
	if bets.inserted[0].Rules != want {
		t.Errorf("expected composed rules %q, got %q", want, bets.inserted[0].Rules)
	}
}

package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/quantfold/kalshibot/internal/domain"
)

type fakeBetStore struct {
	open      []domain.Bet
	listErr   error
	updateErr error
	updates   map[string]domain.BetStatus
}

func (f *fakeBetStore) Insert(_ context.Context, bet domain.Bet) (domain.Bet, error) {
	return bet, nil
}

func (f *fakeBetStore) UpdateStatus(_ context.Context, id string, status domain.BetStatus) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updates == nil {
		f.updates = map[string]domain.BetStatus{}
	}
	f.updates[id] = status
	return nil
}

func (f *fakeBetStore) ListOpen(context.Context) ([]domain.Bet, error) {
	return f.open, f.listErr
}

func (f *fakeBetStore) CountByTicker(context.Context, string) (int, error) {
	return 0, nil
}

func (f *fakeBetStore) CountBySeriesPrefix(context.Context, string) (int, error) {
	return 0, nil
}

func (f *fakeBetStore) ListRecent(context.Context, int) ([]domain.Bet, error) {
	return f.open, nil
}

type fakeMarketSource struct {
	markets map[string]domain.Market
	errs    map[string]error
	fetched []string
}

func (f *fakeMarketSource) ListMarkets(context.Context, domain.MarketFilter) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeMarketSource) GetMarket(_ context.Context, ticker string) (domain.Market, error) {
	f.fetched = append(f.fetched, ticker)
	if err := f.errs[ticker]; err != nil {
		return domain.Market{}, err
	}
	return f.markets[ticker], nil
}

func (f *fakeMarketSource) GetSeries(context.Context, string) (domain.Series, error) {
	return domain.Series{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openBet(id, ticker string, side domain.BetSide) domain.Bet {
	return domain.Bet{ID: id, Ticker: ticker, Side: side, Status: domain.BetStatusOpen}
}

func TestTransition(t *testing.T) {
	cases := []struct {
		name   string
		side   domain.BetSide
		status domain.MarketStatus
		result string
		want   domain.BetStatus
		ok     bool
	}{
		{"yes result, yes side", domain.BetSideYes, domain.MarketStatusSettled, "yes", domain.BetStatusWon, true},
		{"yes result, no side", domain.BetSideNo, domain.MarketStatusSettled, "yes", domain.BetStatusLost, true},
		{"no result, no side", domain.BetSideNo, domain.MarketStatusFinalized, "no", domain.BetStatusWon, true},
		{"no result, yes side", domain.BetSideYes, domain.MarketStatusFinalized, "no", domain.BetStatusLost, true},
		{"uppercase padded result", domain.BetSideYes, domain.MarketStatusSettled, "  YES ", domain.BetStatusWon, true},
		{"void", domain.BetSideYes, domain.MarketStatusSettled, "void", domain.BetStatusVoid, true},
		{"canceled", domain.BetSideYes, domain.MarketStatusClosed, "canceled", domain.BetStatusVoid, true},
		{"cancelled", domain.BetSideYes, domain.MarketStatusClosed, "cancelled", domain.BetStatusVoid, true},
		{"refunded", domain.BetSideNo, domain.MarketStatusSettled, "refunded", domain.BetStatusVoid, true},
		{"finalized without result", domain.BetSideYes, domain.MarketStatusFinalized, "", domain.BetStatusSettled, true},
		{"closed without result", domain.BetSideYes, domain.MarketStatusClosed, "", "", false},
		{"still trading", domain.BetSideYes, domain.MarketStatusOpen, "yes", "", false},
		{"unknown result", domain.BetSideYes, domain.MarketStatusSettled, "scalar_75", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bet := domain.Bet{Side: tc.side}
			market := domain.Market{Status: tc.status, Result: tc.result}
			got, ok := Transition(bet, market)
			if ok != tc.ok || got != tc.want {
				t.Errorf("Transition = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestSweepUpdatesSettledBets(t *testing.T) {
	bets := &fakeBetStore{open: []domain.Bet{
		openBet("b1", "KXRT-WON", domain.BetSideYes),
		openBet("b2", "KXRT-STILL", domain.BetSideYes),
		openBet("b3", "KXTV-VOID", domain.BetSideNo),
	}}
	markets := &fakeMarketSource{markets: map[string]domain.Market{
		"KXRT-WON":   {Status: domain.MarketStatusSettled, Result: "yes"},
		"KXRT-STILL": {Status: domain.MarketStatusOpen},
		"KXTV-VOID":  {Status: domain.MarketStatusSettled, Result: "refunded"},
	}}

	r := New(bets, markets, testLogger())
	stats, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if stats.Checked != 3 || stats.Updated != 2 || stats.Skipped != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if bets.updates["b1"] != domain.BetStatusWon {
		t.Errorf("b1 should be won, got %s", bets.updates["b1"])
	}
	if bets.updates["b3"] != domain.BetStatusVoid {
		t.Errorf("b3 should be void, got %s", bets.updates["b3"])
	}
	if _, ok := bets.updates["b2"]; ok {
		t.Error("b2 is still trading and must not be updated")
	}
}

func TestSweepLeavesUnknownResultOpen(t *testing.T) {
	bets := &fakeBetStore{open: []domain.Bet{openBet("b1", "KXRT-ODD", domain.BetSideYes)}}
	markets := &fakeMarketSource{markets: map[string]domain.Market{
		"KXRT-ODD": {Status: domain.MarketStatusSettled, Result: "75_percent"},
	}}

	r := New(bets, markets, testLogger())
	stats, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if stats.Updated != 0 || stats.Skipped != 1 {
		t.Errorf("unknown results must be skipped, got %+v", stats)
	}
	if len(bets.updates) != 0 {
		t.Errorf("no status update expected, got %v", bets.updates)
	}
}

func TestSweepContinuesPastFetchFailures(t *testing.T) {
	bets := &fakeBetStore{open: []domain.Bet{
		openBet("b1", "KXRT-GONE", domain.BetSideYes),
		openBet("b2", "KXRT-WON", domain.BetSideYes),
	}}
	markets := &fakeMarketSource{
		markets: map[string]domain.Market{
			"KXRT-WON": {Status: domain.MarketStatusSettled, Result: "yes"},
		},
		errs: map[string]error{"KXRT-GONE": domain.ErrNotFound},
	}

	r := New(bets, markets, testLogger())
	stats, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("one bad market must not abort the sweep: %v", err)
	}
	if stats.Updated != 1 || stats.Skipped != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if bets.updates["b2"] != domain.BetStatusWon {
		t.Errorf("b2 should still settle, got %s", bets.updates["b2"])
	}
}

func TestSweepFailsWhenLedgerUnreadable(t *testing.T) {
	bets := &fakeBetStore{listErr: errors.New("ledger down")}
	r := New(bets, &fakeMarketSource{}, testLogger())

	if _, err := r.Sweep(context.Background()); err == nil {
		t.Fatal("expected error when open bets cannot be listed")
	}
}

func TestSweepNoOpenBets(t *testing.T) {
	markets := &fakeMarketSource{}
	r := New(&fakeBetStore{}, markets, testLogger())

	stats, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if len(markets.fetched) != 0 {
		t.Error("no market lookups expected with an empty ledger")
	}
}

package domain

import (
	"context"
	"time"
)

// MarketFilter narrows a market listing to a close-time window. Zero times
// are omitted from the query.
type MarketFilter struct {
	MinCloseTime time.Time
	MaxCloseTime time.Time
	SeriesTicker string
}

// MarketSource is read access to exchange market data.
type MarketSource interface {
	// ListMarkets returns every market matching the filter, following
	// pagination cursors until exhausted.
	ListMarkets(ctx context.Context, f MarketFilter) ([]Market, error)

	// GetMarket returns the current state of a single market.
	GetMarket(ctx context.Context, ticker string) (Market, error)

	// GetSeries returns the series entity for a series ticker.
	GetSeries(ctx context.Context, seriesTicker string) (Series, error)
}

// OrderResult is the subset of an order placement response the core needs.
// Simulated is set for dry-run orders that never reached the exchange.
type OrderResult struct {
	OrderID   string
	Status    string
	TakerFees float64
	MakerFees float64
	Simulated bool
}

// TotalFees returns the combined taker and maker fees in dollars.
func (r OrderResult) TotalFees() float64 {
	return r.TakerFees + r.MakerFees
}

// OrderPlacer submits buy orders to the exchange.
type OrderPlacer interface {
	// PlaceOrder buys count contracts of side at the given limit price
	// (decimal dollars).
	PlaceOrder(ctx context.Context, ticker string, side BetSide, count int64, price float64) (OrderResult, error)
}

// Balance is an account equity snapshot in decimal dollars.
type Balance struct {
	Cash      float64
	Positions float64
}

// Total returns cash plus open position value.
func (b Balance) Total() float64 {
	return b.Cash + b.Positions
}

// BalanceSource reads the account's current balance.
type BalanceSource interface {
	GetBalance(ctx context.Context) (Balance, error)
}

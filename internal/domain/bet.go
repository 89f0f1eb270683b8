package domain

import "time"

// BetSide is the side of the market a bet was placed on.
type BetSide string

const (
	BetSideYes BetSide = "YES"
	BetSideNo  BetSide = "NO"
)

// Valid reports whether the side is one of the two recognized values.
func (s BetSide) Valid() bool {
	return s == BetSideYes || s == BetSideNo
}

// BetStatus tracks a bet from placement to settlement.
type BetStatus string

const (
	// BetStatusOpen is a live position awaiting market settlement.
	BetStatusOpen BetStatus = "open"
	// BetStatusDryRun is a simulated bet; no real position exists and the
	// reconciler never touches it.
	BetStatusDryRun BetStatus = "dry_run"
	BetStatusWon    BetStatus = "won"
	BetStatusLost   BetStatus = "lost"
	// BetStatusVoid means the market was canceled or refunded.
	BetStatusVoid BetStatus = "void"
	// BetStatusSettled means the market finalized without a binary yes/no
	// result (fair-value settlement).
	BetStatusSettled BetStatus = "settled"
)

// Terminal reports whether the status is absorbing: once reached, the
// reconciler never revisits the bet.
func (s BetStatus) Terminal() bool {
	switch s {
	case BetStatusWon, BetStatusLost, BetStatusVoid, BetStatusSettled:
		return true
	default:
		return false
	}
}

// Bet is a persisted record of a placed (or simulated) order. Rows are
// append-and-update only; status is the sole mutable column after insert.
type Bet struct {
	ID     string
	Ticker string
	Side   BetSide
	// Price is the limit price in decimal dollars.
	Price float64
	// Count is the number of contracts bought.
	Count int64
	// Amount is the nominal stake in dollars (approximately price * count).
	Amount float64
	Status BetStatus
	// PortfolioBalance is the total equity snapshot (cash + positions) taken
	// right after placement. Nil when the balance query failed.
	PortfolioBalance *float64
	// Fee is the taker+maker fee in dollars reported by the order response.
	// Nil for dry runs or when the response carried no fee data.
	Fee           *float64
	Reasoning     string
	Confidence    string
	Title         string
	Subtitle      string
	Rules         string
	PromptVersion string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

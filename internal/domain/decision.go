package domain

// DecisionKind distinguishes a trade recommendation from an explicit pass.
type DecisionKind string

const (
	DecisionBet  DecisionKind = "BET"
	DecisionPass DecisionKind = "PASS"
)

// Decision is the structured trade decision extracted from the oracle's
// free-text output. It is ephemeral: nothing is persisted unless execution
// succeeds, at which point the fields are copied into a Bet.
type Decision struct {
	Kind   DecisionKind
	Ticker string
	Side   BetSide
	// Price is the decimal-dollar price named by the oracle. A zero price
	// from a lenient parse is treated as invalid by the executor, not here.
	Price      float64
	Reasoning  string
	Confidence string
}

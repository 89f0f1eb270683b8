package domain

import (
	"strings"
	"time"
)

// MarketStatus is the exchange-reported lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusClosed    MarketStatus = "closed"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusFinalized MarketStatus = "finalized"
)

// Resolved reports whether the market has reached a state in which a
// settlement result may be inspected.
func (s MarketStatus) Resolved() bool {
	switch s {
	case MarketStatusClosed, MarketStatusSettled, MarketStatusFinalized:
		return true
	default:
		return false
	}
}

// SettlementSource is a named verification source declared by a series
// (e.g. "Rotten Tomatoes", "Billboard").
type SettlementSource struct {
	Name string
	URL  string
}

// Market is a single Kalshi event-contract market. Prices are decimal
// dollars in (0, 1); optional prices are nil when the exchange did not
// report a usable value.
type Market struct {
	Ticker         string
	Title          string
	Subtitle       string
	Status         MarketStatus
	Result         string
	YesAsk         *float64
	NoAsk          *float64
	LastPrice      *float64
	Volume         int64
	Liquidity      int64
	OpenTime       time.Time
	CloseTime      time.Time
	RulesPrimary   string
	RulesSecondary string
	// SettlementSources is inherited from the parent series and populated
	// by the filter engine's enrichment stage.
	SettlementSources []SettlementSource
}

// SeriesPrefix returns the series identifier encoded in the ticker: the
// portion before the first '-'. Tickers without a '-' are their own series.
func (m Market) SeriesPrefix() string {
	return SeriesPrefix(m.Ticker)
}

// Spread returns yesAsk + noAsk, the round-trip cost of trading the market.
// The second return is false when either side's ask is missing.
func (m Market) Spread() (float64, bool) {
	if m.YesAsk == nil || m.NoAsk == nil {
		return 0, false
	}
	return *m.YesAsk + *m.NoAsk, true
}

// ComposedRules builds the full rules text for the market: the primary
// rules, a sentence naming the settlement sources, then the secondary
// rules. Markets without sources just get their raw rules back.
func (m Market) ComposedRules() string {
	full := m.RulesPrimary

	names := make([]string, 0, len(m.SettlementSources))
	for _, s := range m.SettlementSources {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	if len(names) > 0 {
		full += " Outcome verified from " + joinNames(names) + "."
	}

	if m.RulesSecondary != "" {
		full += " " + m.RulesSecondary
	}
	return full
}

// joinNames renders a human list: "A", "A and B", "A, B and C".
func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// SeriesPrefix extracts the series identifier from a raw ticker string.
func SeriesPrefix(ticker string) string {
	if i := strings.IndexByte(ticker, '-'); i >= 0 {
		return ticker[:i]
	}
	return ticker
}

// Series is a family of related markets (e.g. weekly instances of the same
// question) sharing settlement sources.
type Series struct {
	Ticker            string
	Title             string
	Category          string
	SettlementSources []SettlementSource
}

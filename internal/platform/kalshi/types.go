package kalshi

import (
	"strconv"
	"time"

	"github.com/quantfold/kalshibot/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Dollar-denominated prices arrive as decimal strings in the *_dollars
// fields; anything unparsable becomes a nil price in the domain record.
type KalshiMarket struct {
	Ticker           string `json:"ticker"`
	EventTicker      string `json:"event_ticker"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle"`
	YesSubTitle      string `json:"yes_sub_title"`
	Status           string `json:"status"` // "open", "closed", "settled", "finalized"
	Result           string `json:"result"` // "yes", "no", "void", "" (unsettled)
	YesAskDollars    string `json:"yes_ask_dollars"`
	NoAskDollars     string `json:"no_ask_dollars"`
	LastPriceDollars string `json:"last_price_dollars"`
	Volume           int64  `json:"volume"`
	Volume24H        int64  `json:"volume_24h"`
	Liquidity        int64  `json:"liquidity"`
	OpenInterest     int64  `json:"open_interest"`
	OpenTime         string `json:"open_time"`
	CloseTime        string `json:"close_time"`
	RulesPrimary     string `json:"rules_primary"`
	RulesSecondary   string `json:"rules_secondary"`
	CanCloseEarly    bool   `json:"can_close_early"`
}

// ToDomain converts the API DTO into the typed domain record.
func (m KalshiMarket) ToDomain() domain.Market {
	subtitle := m.Subtitle
	if subtitle == "" {
		subtitle = m.YesSubTitle
	}
	return domain.Market{
		Ticker:         m.Ticker,
		Title:          m.Title,
		Subtitle:       subtitle,
		Status:         domain.MarketStatus(m.Status),
		Result:         m.Result,
		YesAsk:         parseDollars(m.YesAskDollars),
		NoAsk:          parseDollars(m.NoAskDollars),
		LastPrice:      parseDollars(m.LastPriceDollars),
		Volume:         m.Volume,
		Liquidity:      m.Liquidity,
		OpenTime:       parseTime(m.OpenTime),
		CloseTime:      parseTime(m.CloseTime),
		RulesPrimary:   m.RulesPrimary,
		RulesSecondary: m.RulesSecondary,
	}
}

// parseDollars converts a decimal dollar string into an optional price.
// Empty or malformed values yield nil rather than a sentinel.
func parseDollars(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseTime parses the RFC 3339 timestamps used by the Kalshi API. A zero
// time is returned for malformed values; such markets fail the close-time
// window downstream instead of crashing the pipeline.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// KalshiSeries represents a series as returned by the Kalshi REST API.
type KalshiSeries struct {
	Ticker            string                   `json:"ticker"`
	Title             string                   `json:"title"`
	Category          string                   `json:"category"`
	SettlementSources []KalshiSettlementSource `json:"settlement_sources"`
}

// KalshiSettlementSource is a named verification source on a series.
type KalshiSettlementSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ToDomain converts the series DTO into the typed domain record.
func (s KalshiSeries) ToDomain() domain.Series {
	sources := make([]domain.SettlementSource, 0, len(s.SettlementSources))
	for _, src := range s.SettlementSources {
		if src.Name == "" {
			continue
		}
		sources = append(sources, domain.SettlementSource{Name: src.Name, URL: src.URL})
	}
	return domain.Series{
		Ticker:            s.Ticker,
		Title:             s.Title,
		Category:          s.Category,
		SettlementSources: sources,
	}
}

// KalshiOrder represents an order to be placed on the Kalshi exchange.
// Prices are integer cents (1-99).
type KalshiOrder struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "market" or "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
}

// KalshiOrderResponse represents the API response after placing an order.
type KalshiOrderResponse struct {
	Order struct {
		OrderID          string `json:"order_id"`
		Ticker           string `json:"ticker"`
		Status           string `json:"status"` // "resting", "canceled", "executed", "pending"
		Action           string `json:"action"`
		Side             string `json:"side"`
		YesPrice         int64  `json:"yes_price"`
		NoPrice          int64  `json:"no_price"`
		TakerFillCount   int64  `json:"taker_fill_count"`
		TakerFeesDollars string `json:"taker_fees_dollars"`
		MakerFeesDollars string `json:"maker_fees_dollars"`
		PlacedTime       string `json:"placed_time"`
	} `json:"order"`
}

// KalshiBalance represents the portfolio balance response. Values are in
// integer cents.
type KalshiBalance struct {
	Balance        int64 `json:"balance"`
	PortfolioValue int64 `json:"portfolio_value"`
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Package prompt renders the analysis prompt fed to the decision oracle
// from filtered market data and current portfolio context. Templates are
// versioned and embedded so each bet can record exactly which prompt
// produced it.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/quantfold/kalshibot/internal/domain"
)

//go:embed templates/*.md
var templatesFS embed.FS

// maxRulesLen truncates rules text to keep market lines compact but useful.
const maxRulesLen = 300

// Builder renders the prompt for one template version.
type Builder struct {
	version  string
	template string
}

// NewBuilder loads the embedded template for the given version (e.g. "v4").
func NewBuilder(version string) (*Builder, error) {
	data, err := templatesFS.ReadFile("templates/" + version + ".md")
	if err != nil {
		return nil, fmt.Errorf("prompt: unknown template version %q: %w", version, err)
	}
	return &Builder{version: version, template: string(data)}, nil
}

// Version returns the template version tag.
func (b *Builder) Version() string {
	return b.version
}

// Build fills the template placeholders with formatted market data, the
// active portfolio, and the run date. With no formattable markets it
// returns ok=false; there is nothing worth asking the oracle.
func (b *Builder) Build(markets []domain.Market, activeBets []domain.Bet, now time.Time) (string, bool) {
	var lines []string
	for _, m := range markets {
		if line, ok := FormatMarketLine(m); ok {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", false
	}

	prompt := strings.ReplaceAll(b.template, "[MARKET DATA GOES HERE]", strings.Join(lines, "\n"))
	prompt = strings.ReplaceAll(prompt, "[PORTFOLIO_DATA]", formatPortfolio(activeBets))
	prompt = strings.ReplaceAll(prompt, "[DATE]", now.UTC().Format("2006-01-02"))
	return prompt, true
}

// FormatMarketLine renders one market as a compact pipe-separated line.
// Markets with no ask price on either side are unformattable (ok=false).
func FormatMarketLine(m domain.Market) (string, bool) {
	if m.YesAsk == nil && m.NoAsk == nil {
		return "", false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s | %s (%s) | Close:%s | Y:%s N:%s",
		m.Ticker, m.Title, m.Subtitle,
		m.CloseTime.UTC().Format(time.RFC3339),
		price(m.YesAsk), price(m.NoAsk),
	)
	if spread, ok := m.Spread(); ok {
		fmt.Fprintf(&sb, " | Spread:$%.2f", spread)
	}
	fmt.Fprintf(&sb, " | Last:%s | Vol:%d Liq:%d", price(m.LastPrice), m.Volume, m.Liquidity)

	if rules := truncate(m.ComposedRules(), maxRulesLen); rules != "" {
		sb.WriteString(" | Rules: " + rules)
	}
	return sb.String(), true
}

// formatPortfolio renders the active bets section.
func formatPortfolio(bets []domain.Bet) string {
	if len(bets) == 0 {
		return "No active positions."
	}
	lines := make([]string, 0, len(bets))
	for _, b := range bets {
		lines = append(lines, fmt.Sprintf("- %s on %s (%s)", b.Side, b.Ticker, b.Title))
	}
	return strings.Join(lines, "\n")
}

func price(p *float64) string {
	if p == nil {
		return "$N/A"
	}
	return fmt.Sprintf("$%.2f", *p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Package parser extracts a structured trade decision from the oracle's
// free-text output, tolerating markdown fencing, surrounding prose, and
// trailing-comma JSON.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/quantfold/kalshibot/internal/domain"
)

// Typed parse failures so callers can assert on the failure kind instead of
// fishing in error strings.
var (
	ErrEmptyOutput        = errors.New("parser: empty oracle output")
	ErrNoJSONObject       = errors.New("parser: no JSON object found in output")
	ErrMalformedJSON      = errors.New("parser: malformed JSON after repairs")
	ErrIncompleteDecision = errors.New("parser: decision missing required fields")
)

var (
	jsonFenceRe    = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	genericFenceRe = regexp.MustCompile("(?s)```\\s*(\\{.*\\})\\s*```")
	trailingComma  = regexp.MustCompile(`,(\s*})$`)
)

// rawDecision mirrors the JSON contract the prompt asks the oracle to emit.
type rawDecision struct {
	Decision   string `json:"decision"`
	Ticker     string `json:"ticker"`
	Side       string `json:"side"`
	Price      any    `json:"price"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"`
}

// Parse converts oracle output into a Decision. It never panics and never
// propagates a decode failure as anything other than one of the typed
// errors above.
func Parse(output string) (domain.Decision, error) {
	text := strings.TrimSpace(output)
	if text == "" {
		return domain.Decision{}, ErrEmptyOutput
	}

	extracted, ok := extractJSON(text)
	if !ok {
		return domain.Decision{}, ErrNoJSONObject
	}

	// Models habitually leave a trailing comma before the final brace.
	extracted = trailingComma.ReplaceAllString(strings.TrimSpace(extracted), "$1")

	var raw rawDecision
	if err := json.Unmarshal([]byte(extracted), &raw); err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	kind := stripBold(raw.Decision)
	if kind == "" {
		kind = string(domain.DecisionBet)
	}

	if kind == string(domain.DecisionPass) {
		return domain.Decision{
			Kind:      domain.DecisionPass,
			Reasoning: stripBold(raw.Reasoning),
		}, nil
	}

	ticker := stripBold(raw.Ticker)
	side := domain.BetSide(strings.ToUpper(stripBold(raw.Side)))
	if ticker == "" || !side.Valid() {
		return domain.Decision{}, ErrIncompleteDecision
	}

	return domain.Decision{
		Kind:   domain.DecisionBet,
		Ticker: ticker,
		Side:   side,
		// A missing price coerces to 0.0; the executor treats that as
		// invalid, not the parser.
		Price:      coercePrice(raw.Price),
		Reasoning:  stripBold(raw.Reasoning),
		Confidence: stripBold(raw.Confidence),
	}, nil
}

// extractJSON pulls the most plausible JSON object out of the text:
// a ```json fence first, then any fence whose body is an object, then the
// substring from the first '{' to the last '}'.
func extractJSON(text string) (string, bool) {
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := genericFenceRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// coercePrice accepts the price however the model rendered it: a JSON
// number, or a numeric string.
func coercePrice(v any) float64 {
	switch p := v.(type) {
	case float64:
		return p
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &f); err == nil {
			return f
		}
	}
	return 0.0
}

// stripBold removes literal markdown bold markers that models sprinkle into
// string values.
func stripBold(s string) string {
	return strings.ReplaceAll(s, "**", "")
}

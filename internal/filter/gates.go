package filter

import (
	"strings"

	"github.com/quantfold/kalshibot/internal/domain"
)

// Gate decides whether a market is topically eligible for analysis. The
// rest of the pipeline (volume, pricing, spread, exposure, diversity) is
// fixed; only topicality policy is swappable.
type Gate interface {
	// Eligible reports whether the market passes the topicality policy.
	Eligible(m domain.Market) bool
	// Name identifies the gate in logs.
	Name() string
}

// PrefixGate admits markets whose ticker starts with any allowed series
// prefix. This is the simplest observed policy: trade only a curated set
// of series families.
type PrefixGate struct {
	allow []string
}

// NewPrefixGate creates a PrefixGate from a ticker-prefix allow-list.
func NewPrefixGate(allowPrefixes []string) *PrefixGate {
	return &PrefixGate{allow: allowPrefixes}
}

func (g *PrefixGate) Name() string { return "prefix" }

func (g *PrefixGate) Eligible(m domain.Market) bool {
	return hasAnyPrefix(m.Ticker, g.allow)
}

// SmartGate combines an allow-list with a keyword deny-list, a volume
// override, and a hard-ban list.
//
// Evaluation order:
//  1. Hard-banned prefixes are rejected unconditionally; no volume ever
//     overrides them.
//  2. Deny keywords in the title reject the market.
//  3. Allowed prefixes pass.
//  4. Markets with volume at or above the override threshold pass the
//     allow-list check even when their prefix is not listed.
type SmartGate struct {
	allow          []string
	denyKeywords   []string
	ban            []string
	volumeOverride int64
}

// SmartGateConfig holds the policy lists for a SmartGate.
type SmartGateConfig struct {
	AllowPrefixes  []string
	DenyKeywords   []string
	BanPrefixes    []string
	VolumeOverride int64
}

// NewSmartGate creates a SmartGate from the given policy lists. Deny
// keywords are matched case-insensitively against market titles.
func NewSmartGate(cfg SmartGateConfig) *SmartGate {
	lowered := make([]string, 0, len(cfg.DenyKeywords))
	for _, kw := range cfg.DenyKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &SmartGate{
		allow:          cfg.AllowPrefixes,
		denyKeywords:   lowered,
		ban:            cfg.BanPrefixes,
		volumeOverride: cfg.VolumeOverride,
	}
}

func (g *SmartGate) Name() string { return "smart" }

func (g *SmartGate) Eligible(m domain.Market) bool {
	if hasAnyPrefix(m.Ticker, g.ban) {
		return false
	}

	title := strings.ToLower(m.Title)
	for _, kw := range g.denyKeywords {
		if strings.Contains(title, kw) {
			return false
		}
	}

	if hasAnyPrefix(m.Ticker, g.allow) {
		return true
	}
	return g.volumeOverride > 0 && m.Volume >= g.volumeOverride
}

func hasAnyPrefix(ticker string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(ticker, p) {
			return true
		}
	}
	return false
}

// Package config defines the top-level configuration for the trading
// assistant and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by KALSHIBOT_* environment
// variables.
type Config struct {
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Trading  TradingConfig  `toml:"trading"`
	Filter   FilterConfig   `toml:"filter"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// KalshiConfig holds Kalshi exchange API parameters. Market data is public;
// the API key and RSA private key are only required when placing orders or
// reading the portfolio.
type KalshiConfig struct {
	BaseURL           string `toml:"base_url"`
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
}

// GeminiConfig holds Generative Language API parameters for the decision
// oracle. Models are tried in order until one produces a response.
type GeminiConfig struct {
	ApiKey  string   `toml:"api_key"`
	BaseURL string   `toml:"base_url"`
	Models  []string `toml:"models"`
	// DryRunModels replaces Models when trading.dry_run is set, so test
	// runs burn cheaper quota.
	DryRunModels []string `toml:"dry_run_models"`
	// EnableSearch attaches the Google Search grounding tool to requests.
	EnableSearch bool `toml:"enable_search"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters for the
// bet ledger.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the run lock and the
// series settlement-source cache.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
	SeriesTTL  duration `toml:"series_ttl"`
}

// S3Config holds S3-compatible object storage parameters for run artifacts.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig holds execution and exposure parameters.
type TradingConfig struct {
	// Stake is the nominal dollars spent per bet; contract count is
	// floor(stake / price).
	Stake float64 `toml:"stake"`
	// DryRun simulates order placement while keeping full bookkeeping.
	DryRun bool `toml:"dry_run"`
	// MaxBetsPerTicker caps how many bets may ever be recorded against one
	// ticker (dry runs excluded).
	MaxBetsPerTicker int `toml:"max_bets_per_ticker"`
	// MaxBetsPerSeries caps bets across all markets of one series.
	MaxBetsPerSeries int `toml:"max_bets_per_series"`
	// MinBalanceCents aborts the run when total cash falls below this floor.
	MinBalanceCents int64 `toml:"min_balance_cents"`
	// PromptVersion selects the embedded prompt template and is recorded on
	// every bet for later prompt/outcome attribution.
	PromptVersion string `toml:"prompt_version"`
}

// FilterConfig holds the market filtering policy. Thresholds are
// deployment configuration, not hard-wired law.
type FilterConfig struct {
	// Gate selects the topicality strategy: "prefix" or "smart".
	Gate string `toml:"gate"`
	// MinLead/MaxLead bound how far out a market's close time must be.
	MinLead duration `toml:"min_lead"`
	MaxLead duration `toml:"max_lead"`
	// MinVolume rejects markets with no genuine trading interest.
	MinVolume int64 `toml:"min_volume"`
	// MinYesPrice/MaxYesPrice define the tradable price band; extreme
	// prices are "the market is usually right" territory.
	MinYesPrice float64 `toml:"min_yes_price"`
	MaxYesPrice float64 `toml:"max_yes_price"`
	// MaxSpread is the yesAsk+noAsk ceiling (vig filter).
	MaxSpread float64 `toml:"max_spread"`
	// MaxPerSeries caps candidates per series prefix (diversification).
	MaxPerSeries int `toml:"max_per_series"`
	// MaxCandidates bounds the final candidate count fed to the oracle.
	MaxCandidates int `toml:"max_candidates"`
	// AllowPrefixes is the ticker-prefix allow-list for both gates.
	AllowPrefixes []string `toml:"allow_prefixes"`
	// DenyKeywords rejects markets whose title contains any keyword
	// (smart gate only).
	DenyKeywords []string `toml:"deny_keywords"`
	// BanPrefixes is the hard-ban list the volume override never bypasses
	// (smart gate only).
	BanPrefixes []string `toml:"ban_prefixes"`
	// VolumeOverride lets extremely liquid markets through the allow-list
	// check (smart gate only).
	VolumeOverride int64 `toml:"volume_override"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "24h", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "24h" or "5m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Models: []string{
				"gemini-3-pro-preview",
				"gemini-2.0-flash-exp",
				"gemini-2.0-flash",
				"gemini-flash-latest",
			},
			DryRunModels: []string{
				"gemini-2.0-flash",
				"gemini-flash-latest",
				"gemini-2.0-flash-exp",
			},
			EnableSearch: true,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			MaxRetries: 3,
			LockTTL:    duration{30 * time.Minute},
			SeriesTTL:  duration{12 * time.Hour},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "kalshibot-runs",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Trading: TradingConfig{
			Stake:            4.00,
			DryRun:           false,
			MaxBetsPerTicker: 2,
			MaxBetsPerSeries: 4,
			MinBalanceCents:  500,
			PromptVersion:    "v4",
		},
		Filter: FilterConfig{
			Gate:        "prefix",
			MinLead:     duration{24 * time.Hour},
			MaxLead:     duration{14 * 24 * time.Hour},
			MinVolume:   50,
			MinYesPrice: 0.15,
			MaxYesPrice: 0.85,
			MaxSpread:   1.08,
			// Two candidates per series keeps one volatile series from
			// crowding out the list.
			MaxPerSeries:  2,
			MaxCandidates: 15,
			AllowPrefixes: []string{
				"KXRT",            // Rotten Tomatoes
				"KXSPOTIFY",       // Spotify
				"KXNETFLIX",       // Netflix
				"KXMOVI",          // Movies
				"KXBILLBOARD",     // Billboard
				"KXRANKLISTSONG",  // Ranked songs
				"KXSONG",          // Songs
				"KXALBUM",         // Albums
				"KXTV",            // TV
			},
			VolumeOverride: 5000,
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":       true,
	"reconcile": true,
	"analyze":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validGates enumerates the accepted values for Filter.Gate.
var validGates = map[string]bool{
	"prefix": true,
	"smart":  true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, reconcile, analyze)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi credentials are only needed when real orders can happen.
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	placesOrders := strings.ToLower(c.Mode) == "run" && !c.Trading.DryRun
	if placesOrders {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for live trading")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for live trading")
		}
	}

	// The oracle is needed for any analyzing mode.
	if strings.ToLower(c.Mode) != "reconcile" {
		if c.Gemini.ApiKey == "" {
			errs = append(errs, "gemini: api_key is required for mode "+c.Mode)
		}
		if len(c.Gemini.Models) == 0 {
			errs = append(errs, "gemini: at least one model must be configured")
		}
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be positive")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Trading
	if c.Trading.Stake <= 0 {
		errs = append(errs, "trading: stake must be > 0")
	}
	if c.Trading.MaxBetsPerTicker < 1 {
		errs = append(errs, "trading: max_bets_per_ticker must be >= 1")
	}
	if c.Trading.MaxBetsPerSeries < c.Trading.MaxBetsPerTicker {
		errs = append(errs, "trading: max_bets_per_series must be >= max_bets_per_ticker")
	}
	if c.Trading.PromptVersion == "" {
		errs = append(errs, "trading: prompt_version must not be empty")
	}

	// Filter
	if !validGates[strings.ToLower(c.Filter.Gate)] {
		errs = append(errs, fmt.Sprintf("filter: unknown gate %q (valid: prefix, smart)", c.Filter.Gate))
	}
	if c.Filter.MinLead.Duration <= 0 {
		errs = append(errs, "filter: min_lead must be positive")
	}
	if c.Filter.MaxLead.Duration <= c.Filter.MinLead.Duration {
		errs = append(errs, "filter: max_lead must exceed min_lead")
	}
	if c.Filter.MinYesPrice <= 0 || c.Filter.MinYesPrice >= 1 {
		errs = append(errs, "filter: min_yes_price must be strictly inside (0, 1)")
	}
	if c.Filter.MaxYesPrice <= c.Filter.MinYesPrice || c.Filter.MaxYesPrice >= 1 {
		errs = append(errs, "filter: max_yes_price must be in (min_yes_price, 1)")
	}
	if c.Filter.MaxSpread <= 1.0 {
		errs = append(errs, "filter: max_spread must exceed 1.00")
	}
	if c.Filter.MaxPerSeries < 1 {
		errs = append(errs, "filter: max_per_series must be >= 1")
	}
	if c.Filter.MaxCandidates < 1 {
		errs = append(errs, "filter: max_candidates must be >= 1")
	}
	if len(c.Filter.AllowPrefixes) == 0 {
		errs = append(errs, "filter: allow_prefixes must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KALSHIBOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KALSHIBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "KALSHIBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, "KALSHIBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHIBOT_KALSHI_RSA_PRIVATE_KEY_PATH")

	// ── Gemini ──
	setStr(&cfg.Gemini.ApiKey, "KALSHIBOT_GEMINI_API_KEY")
	setStr(&cfg.Gemini.ApiKey, "GEMINI_API_KEY") // compatibility alias
	setStr(&cfg.Gemini.BaseURL, "KALSHIBOT_GEMINI_BASE_URL")
	setStringSlice(&cfg.Gemini.Models, "KALSHIBOT_GEMINI_MODELS")
	setStringSlice(&cfg.Gemini.DryRunModels, "KALSHIBOT_GEMINI_DRY_RUN_MODELS")
	setBool(&cfg.Gemini.EnableSearch, "KALSHIBOT_GEMINI_ENABLE_SEARCH")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "KALSHIBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "KALSHIBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "KALSHIBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "KALSHIBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "KALSHIBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "KALSHIBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "KALSHIBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "KALSHIBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "KALSHIBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "KALSHIBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KALSHIBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHIBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHIBOT_REDIS_DB")
	setInt(&cfg.Redis.MaxRetries, "KALSHIBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KALSHIBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "KALSHIBOT_REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.SeriesTTL, "KALSHIBOT_REDIS_SERIES_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KALSHIBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KALSHIBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KALSHIBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "KALSHIBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KALSHIBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KALSHIBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KALSHIBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KALSHIBOT_S3_FORCE_PATH_STYLE")

	// ── Trading ──
	setFloat64(&cfg.Trading.Stake, "KALSHIBOT_TRADING_STAKE")
	setBool(&cfg.Trading.DryRun, "KALSHIBOT_TRADING_DRY_RUN")
	setBool(&cfg.Trading.DryRun, "DRY_RUN") // compatibility alias
	setInt(&cfg.Trading.MaxBetsPerTicker, "KALSHIBOT_TRADING_MAX_BETS_PER_TICKER")
	setInt(&cfg.Trading.MaxBetsPerSeries, "KALSHIBOT_TRADING_MAX_BETS_PER_SERIES")
	setInt64(&cfg.Trading.MinBalanceCents, "KALSHIBOT_TRADING_MIN_BALANCE_CENTS")
	setStr(&cfg.Trading.PromptVersion, "KALSHIBOT_TRADING_PROMPT_VERSION")

	// ── Filter ──
	setStr(&cfg.Filter.Gate, "KALSHIBOT_FILTER_GATE")
	setDuration(&cfg.Filter.MinLead, "KALSHIBOT_FILTER_MIN_LEAD")
	setDuration(&cfg.Filter.MaxLead, "KALSHIBOT_FILTER_MAX_LEAD")
	setInt64(&cfg.Filter.MinVolume, "KALSHIBOT_FILTER_MIN_VOLUME")
	setFloat64(&cfg.Filter.MinYesPrice, "KALSHIBOT_FILTER_MIN_YES_PRICE")
	setFloat64(&cfg.Filter.MaxYesPrice, "KALSHIBOT_FILTER_MAX_YES_PRICE")
	setFloat64(&cfg.Filter.MaxSpread, "KALSHIBOT_FILTER_MAX_SPREAD")
	setInt(&cfg.Filter.MaxPerSeries, "KALSHIBOT_FILTER_MAX_PER_SERIES")
	setInt(&cfg.Filter.MaxCandidates, "KALSHIBOT_FILTER_MAX_CANDIDATES")
	setStringSlice(&cfg.Filter.AllowPrefixes, "KALSHIBOT_FILTER_ALLOW_PREFIXES")
	setStringSlice(&cfg.Filter.DenyKeywords, "KALSHIBOT_FILTER_DENY_KEYWORDS")
	setStringSlice(&cfg.Filter.BanPrefixes, "KALSHIBOT_FILTER_BAN_PREFIXES")
	setInt64(&cfg.Filter.VolumeOverride, "KALSHIBOT_FILTER_VOLUME_OVERRIDE")

	// ── Top-level ──
	setStr(&cfg.Mode, "KALSHIBOT_MODE")
	setStr(&cfg.LogLevel, "KALSHIBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

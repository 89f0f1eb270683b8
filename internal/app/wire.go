package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	s3blob "github.com/quantfold/kalshibot/internal/blob/s3"
	"github.com/quantfold/kalshibot/internal/cache/redis"
	"github.com/quantfold/kalshibot/internal/config"
	"github.com/quantfold/kalshibot/internal/domain"
	"github.com/quantfold/kalshibot/internal/platform/gemini"
	"github.com/quantfold/kalshibot/internal/platform/kalshi"
	"github.com/quantfold/kalshibot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Ledger
	Bets domain.BetStore

	// Exchange
	Markets domain.MarketSource
	Orders  domain.OrderPlacer
	Balance domain.BalanceSource

	// Oracle (nil in reconcile mode)
	Oracle domain.Oracle

	// Caches
	LockManager domain.LockManager
	SeriesCache domain.SeriesCache

	// Blob storage (nil when s3 is disabled)
	Archiver *s3blob.RunArchiver
}

// needsOracle returns true for modes that call the decision model.
func needsOracle(mode string) bool {
	switch strings.ToLower(mode) {
	case "run", "analyze":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL bet ledger ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Bets = postgres.NewBetStore(pgClient.Pool())

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SeriesCache = redis.NewSeriesCache(redisClient, cfg.Redis.SeriesTTL.Duration)

	// --- Kalshi exchange client ---
	kalshiClient := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey)
	if cfg.Kalshi.RsaPrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: read kalshi private key: %w", err)
		}
		if err := kalshiClient.SetRSAPrivateKey(pemBytes); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kalshi private key: %w", err)
		}
	}
	deps.Markets = kalshiClient
	deps.Orders = kalshiClient
	deps.Balance = kalshiClient

	// --- Gemini oracle ---
	if needsOracle(cfg.Mode) {
		models := cfg.Gemini.Models
		simulated := cfg.Trading.DryRun || strings.ToLower(cfg.Mode) == "analyze"
		if simulated && len(cfg.Gemini.DryRunModels) > 0 {
			models = cfg.Gemini.DryRunModels
		}
		deps.Oracle = gemini.NewClient(gemini.ClientConfig{
			BaseURL:      cfg.Gemini.BaseURL,
			ApiKey:       cfg.Gemini.ApiKey,
			Models:       models,
			EnableSearch: cfg.Gemini.EnableSearch,
		}, logger)
	}

	// --- S3 run artifacts ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewRunArchiver(s3blob.NewWriter(s3Client))
	}

	return deps, cleanup, nil
}

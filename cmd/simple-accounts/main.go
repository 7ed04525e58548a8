package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-accounts/accounts"
	"github.com/tendant/simple-accounts/internal/config"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/repository"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "simple-accounts",
		Short:         "Account management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		sweepCmd(),
		createAdminCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "simple-accounts version %s (build: %s)\n", Version, BuildTime)
			},
		},
	)
	return cmd
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func initSentry(cfg *config.Config) (bool, error) {
	if cfg.SentryDSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		Release:          "simple-accounts@" + Version,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, fmt.Errorf("init sentry: %w", err)
	}
	return true, nil
}

func flushSentry() {
	sentry.Flush(2 * time.Second)
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	return repository.NewDB(repository.Config{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		DBName:          cfg.DBName,
		SSLMode:         cfg.DBSSLMode,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
}

// openRedis returns nil when refresh tokens stay in Postgres.
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RefreshStore != "redis" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// accountsConfig maps environment configuration onto the library.
func accountsConfig(cfg *config.Config, db *sql.DB, rdb *redis.Client, logger *slog.Logger) accounts.Config {
	credentials := auth.DefaultCredentialConfig()
	credentials.Algorithm = auth.HashAlgorithm(cfg.HashAlgorithm)
	credentials.BcryptCost = cfg.BcryptCost
	lockout := auth.LockoutPolicy{
		MaxAttempts: cfg.LockoutThreshold,
		Duration:    cfg.LockoutDuration,
	}

	ac := accounts.Config{
		DB:                    db,
		RedisPrefix:           cfg.RedisPrefix,
		JWTSecret:             cfg.JWTSecret,
		JWTIssuer:             cfg.JWTIssuer,
		AccessTokenTTL:        cfg.AccessTokenTTL,
		RefreshTokenTTL:       cfg.RefreshTokenTTL,
		MaxSessionsPerAccount: cfg.MaxSessions,
		Credentials:           &credentials,
		Lockout:               lockout,
		PasswordPolicy:        auth.NewPasswordPolicy(cfg.PasswordPolicy),
		StrictEmailValidation: cfg.Validation.StrictEmailValidation,
		BlockDisposableEmail:  cfg.Validation.BlockDisposableEmail,
		StoreTimeout:          cfg.StoreTimeout,
		MaxLockoutRetries:     cfg.MaxLockoutRetries,
		CookieSecure:          cfg.CookieSecure,
		Metrics:               true,
		Logger:                logger,
	}
	// A nil *redis.Client must not become a non-nil interface.
	if rdb != nil {
		ac.Redis = rdb
	}
	return ac
}

// openAccounts loads validated configuration and connects every store.
// The returned cleanup closes them.
func openAccounts(ctx context.Context) (*config.Config, *accounts.Accounts, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}
	cleanup := func() {
		if rdb != nil {
			rdb.Close()
		}
		db.Close()
	}

	acc, err := accounts.New(accountsConfig(cfg, db, rdb, logger))
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}
	logger.Info("connected", "refresh_store", cfg.RefreshStore)
	return cfg, acc, logger, cleanup, nil
}

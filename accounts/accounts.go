// Package accounts provides account management as an embeddable library:
// registration, password login with lockout, rotating refresh tokens,
// role checks, and a user directory with follows.
//
// Setup:
//
//  1. Apply the schema with `simple-accounts migrate`
//  2. Create an Accounts instance and mount its router
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	acc, err := accounts.New(accounts.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", acc.Router())
//	http.ListenAndServe(":8080", r)
//
// With refresh tokens kept in Redis:
//
//	acc, err := accounts.New(accounts.Config{
//	    DB:        db,
//	    Redis:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-accounts/internal/config"
	httpserver "github.com/tendant/simple-accounts/internal/http"
	"github.com/tendant/simple-accounts/internal/http/middleware"
	"github.com/tendant/simple-accounts/internal/metrics"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/directory"
	"github.com/tendant/simple-accounts/pkg/domain"
	"github.com/tendant/simple-accounts/pkg/repository"
	"github.com/tendant/simple-accounts/pkg/repository/redisstore"
)

// Config holds the configuration for the accounts library.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// Redis, when set, holds refresh token records instead of Postgres.
	Redis redis.UniversalClient

	// RedisPrefix namespaces the Redis keys (default: "accounts").
	RedisPrefix string

	// JWTSecret is the secret key for signing JWT tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the issuer claim in JWT tokens (default: "simple-accounts").
	JWTIssuer string

	// AccessTokenTTL is the lifetime of access tokens (default: 15 minutes).
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens (default: 7 days).
	RefreshTokenTTL time.Duration

	// MaxSessionsPerAccount caps concurrent refresh tokens (default: 10).
	MaxSessionsPerAccount int

	// Credentials selects the password hash (default: Argon2id, OWASP parameters).
	Credentials *auth.CredentialConfig

	// Lockout is the failed login policy (default: 5 attempts, 2 hours).
	Lockout auth.LockoutPolicy

	// PasswordPolicy is applied on registration and password change.
	// Default: 8 characters with upper, lower and digit.
	PasswordPolicy *auth.PasswordPolicy

	StrictEmailValidation bool
	BlockDisposableEmail  bool

	// StoreTimeout bounds each store call (default: 5 seconds).
	StoreTimeout time.Duration

	// MaxLockoutRetries bounds compare-and-swap retries on lockout writes (default: 5).
	MaxLockoutRetries int

	// CookieSecure sets the Secure flag on auth cookies.
	CookieSecure bool

	// Metrics enables Prometheus collectors and the /metrics route.
	Metrics bool

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// store is what both the engine and the directory need from persistence.
type store interface {
	auth.AccountStore
	directory.Store
}

// Accounts is the main account management instance.
type Accounts struct {
	config    Config
	engine    *auth.Engine
	directory *directory.Service
	metrics   *metrics.Metrics
}

// New creates a new Accounts instance with the given configuration.
// Returns an error if required database tables don't exist.
func New(cfg Config) (*Accounts, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := repository.ValidateSchema(ctx, cfg.DB); err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}

	var tokens auth.RefreshTokenStore = repository.NewRefreshTokensRepository(cfg.DB)
	if cfg.Redis != nil {
		tokens = redisstore.New(cfg.Redis, cfg.RedisPrefix)
	}
	return build(cfg, repository.NewAccountsRepository(cfg.DB), tokens)
}

func build(cfg Config, accounts store, tokens auth.RefreshTokenStore) (*Accounts, error) {
	credentials, err := auth.NewCredentialManager(*cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}

	var m *metrics.Metrics
	var observer auth.Observer
	if cfg.Metrics {
		m = metrics.New()
		observer = m
	}

	tokenService := auth.NewTokenService(auth.TokenConfig{
		AccessTokenTTL:        cfg.AccessTokenTTL,
		RefreshTokenTTL:       cfg.RefreshTokenTTL,
		JWTSecret:             []byte(cfg.JWTSecret),
		Issuer:                cfg.JWTIssuer,
		MaxSessionsPerAccount: cfg.MaxSessionsPerAccount,
		StoreTimeout:          cfg.StoreTimeout,
	}, tokens, accounts, credentials)

	engine, err := auth.NewEngine(auth.EngineConfig{
		Accounts:              accounts,
		Tokens:                tokenService,
		Credentials:           credentials,
		Lockout:               cfg.Lockout,
		PasswordPolicy:        cfg.PasswordPolicy,
		StrictEmailValidation: cfg.StrictEmailValidation,
		BlockDisposableEmail:  cfg.BlockDisposableEmail,
		StoreTimeout:          cfg.StoreTimeout,
		MaxLockoutRetries:     cfg.MaxLockoutRetries,
		Logger:                cfg.Logger,
		Observer:              observer,
	})
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}

	return &Accounts{
		config:    cfg,
		engine:    engine,
		directory: directory.NewService(accounts, engine, cfg.Logger),
		metrics:   m,
	}, nil
}

// Router returns a chi router with every account route, /health and, if
// enabled, /metrics. Rate limiting is left to the embedding application.
//
// Routes:
//
//	POST   /v1/auth/sign-up, /v1/auth/sign-in, /v1/auth/refresh, /v1/auth/sign-out
//	POST   /v1/auth/sign-out/all      (protected)
//	GET    /v1/auth/me                (protected)
//	PATCH  /v1/auth/change-password   (protected)
//	       /v1/users/...              (protected, some admin only)
func (a *Accounts) Router() http.Handler {
	return a.RouterWith(RouterOptions{})
}

// RouterOptions adjusts the router built by RouterWith.
type RouterOptions struct {
	RateLimit          RateLimits
	// SecurityHeaders replaces DefaultSecurityHeaders when set.
	SecurityHeaders    *SecurityHeaders
	MaxRequestBodySize int64
	SentryEnabled      bool
}

// RouterWith is Router with explicit HTTP hardening settings.
func (a *Accounts) RouterWith(opts RouterOptions) http.Handler {
	headers := DefaultSecurityHeaders()
	if opts.SecurityHeaders != nil {
		headers = *opts.SecurityHeaders
	}
	if opts.MaxRequestBodySize == 0 {
		opts.MaxRequestBodySize = 1 << 20
	}

	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          a.config.Logger,
		Engine:          a.engine,
		Directory:       a.directory,
		Metrics:         a.metrics,
		RateLimitConfig: opts.RateLimit.config(),
		SecurityHeaders: headers.config(),
		Validation:      config.ValidationConfig{MaxRequestBodySize: opts.MaxRequestBodySize},
		CookieSecure:    a.config.CookieSecure,
		SentryEnabled:   opts.SentryEnabled,
	})
}

// Engine returns the authentication engine for advanced usage.
func (a *Accounts) Engine() *auth.Engine {
	return a.engine
}

// Directory returns the directory service for advanced usage.
func (a *Accounts) Directory() *directory.Service {
	return a.directory
}

// AuthMiddleware returns middleware that validates JWT tokens.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(acc.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (a *Accounts) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(a.engine.Tokens())
}

// RequireAdmin returns middleware admitting only admins. Use after
// AuthMiddleware.
func (a *Accounts) RequireAdmin() func(http.Handler) http.Handler {
	return middleware.RequireRole(domain.RoleAdmin)
}

// Sweep deletes expired refresh tokens and those revoked more than
// retention ago.
func (a *Accounts) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return a.engine.Tokens().Sweep(ctx, retention)
}

// RunSweeper calls Sweep every interval until ctx is done. A non-positive
// interval disables it.
func (a *Accounts) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Sweep(ctx, retention)
			if err != nil {
				a.config.Logger.Error("refresh token sweep failed", "error", err)
				continue
			}
			if n > 0 {
				a.config.Logger.Info("refresh tokens swept", "deleted", n)
			}
		}
	}
}

// GetAccountID extracts the account ID from a request.
// Use after AuthMiddleware:
//
//	accountID, ok := accounts.GetAccountID(r)
func GetAccountID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetAccountID(r.Context())
}

// GetAccountIDFromContext extracts the account ID from a context.
func GetAccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return middleware.GetAccountID(ctx)
}

// GetAccount retrieves the current account's profile.
// Use after AuthMiddleware:
//
//	profile, err := acc.GetAccount(r)
func (a *Accounts) GetAccount(r *http.Request) (*domain.Profile, error) {
	id, ok := middleware.GetAccountID(r.Context())
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	account, err := a.engine.Account(r.Context(), id)
	if err != nil {
		return nil, err
	}
	profile := account.PublicProfile()
	return &profile, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("accounts: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("accounts: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("accounts: JWTSecret must be at least 32 characters")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "simple-accounts"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = auth.DefaultRefreshTokenTTL
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = redisstore.DefaultPrefix
	}
	if cfg.Credentials == nil {
		defaults := auth.DefaultCredentialConfig()
		cfg.Credentials = &defaults
	}
	if cfg.PasswordPolicy == nil {
		cfg.PasswordPolicy = &auth.PasswordPolicy{
			MinLength:        8,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireNumber:    true,
		}
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = auth.DefaultStoreTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

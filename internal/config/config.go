package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr      string        `env:"SERVER_ADDR" envDefault:"0.0.0.0"`
	ServerPort      int           `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	// Database (matches podman setup: make postgres-start)
	DBHost            string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort            int           `env:"DB_PORT" envDefault:"25432"`
	DBUser            string        `env:"DB_USER" envDefault:"postgres"`
	DBPassword        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName            string        `env:"DB_NAME" envDefault:"simple_accounts"`
	DBSSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// Refresh token storage: "postgres" or "redis"
	RefreshStore string `env:"REFRESH_STORE" envDefault:"postgres"`
	RedisURL     string `env:"REDIS_URL"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"accounts"`

	// JWT
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"simple-accounts"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	MaxSessions     int           `env:"MAX_SESSIONS_PER_ACCOUNT" envDefault:"10"`

	// Sweeper
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	SweepRetention time.Duration `env:"SWEEP_RETENTION" envDefault:"24h"`

	// Password hashing
	HashAlgorithm string `env:"HASH_ALGORITHM" envDefault:"argon2id"`
	BcryptCost    int    `env:"BCRYPT_COST" envDefault:"12"`

	// Lockout
	LockoutThreshold  int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration   time.Duration `env:"LOCKOUT_DURATION" envDefault:"2h"`
	MaxLockoutRetries int           `env:"LOCKOUT_MAX_RETRIES" envDefault:"5"`

	// Cookies
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`

	// Error reporting
	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	PasswordPolicy  PasswordPolicyConfig
	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig
}

// PasswordPolicyConfig holds password complexity requirements.
type PasswordPolicyConfig struct {
	MinLength        int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	RequireUppercase bool `env:"PASSWORD_REQUIRE_UPPERCASE" envDefault:"true"`
	RequireLowercase bool `env:"PASSWORD_REQUIRE_LOWERCASE" envDefault:"true"`
	RequireNumber    bool `env:"PASSWORD_REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial   bool `env:"PASSWORD_REQUIRE_SPECIAL" envDefault:"false"`
}

// RateLimitConfig holds per-IP request budgets by endpoint group.
type RateLimitConfig struct {
	Enabled                  bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	AuthRequestsPerMinute    int  `env:"RATE_LIMIT_AUTH_REQUESTS" envDefault:"10"`
	AuthWindowMinutes        int  `env:"RATE_LIMIT_AUTH_WINDOW_MINUTES" envDefault:"1"`
	RefreshRequestsPerMinute int  `env:"RATE_LIMIT_REFRESH_REQUESTS" envDefault:"30"`
	RefreshWindowMinutes     int  `env:"RATE_LIMIT_REFRESH_WINDOW_MINUTES" envDefault:"1"`
	ProfileRequestsPerMinute int  `env:"RATE_LIMIT_PROFILE_REQUESTS" envDefault:"60"`
	ProfileWindowMinutes     int  `env:"RATE_LIMIT_PROFILE_WINDOW_MINUTES" envDefault:"1"`
}

// SecurityHeadersConfig holds the response security headers.
type SecurityHeadersConfig struct {
	Enabled            bool   `env:"SECURITY_HEADERS_ENABLED" envDefault:"true"`
	CSP                string `env:"SECURITY_CSP" envDefault:"default-src 'none'; frame-ancestors 'none'"`
	HSTSMaxAge         int    `env:"SECURITY_HSTS_MAX_AGE" envDefault:"31536000"`
	FrameOptions       string `env:"SECURITY_FRAME_OPTIONS" envDefault:"DENY"`
	ContentTypeOptions string `env:"SECURITY_CONTENT_TYPE_OPTIONS" envDefault:"nosniff"`
	XSSProtection      string `env:"SECURITY_XSS_PROTECTION" envDefault:"0"`
	ReferrerPolicy     string `env:"SECURITY_REFERRER_POLICY" envDefault:"no-referrer"`
	PermissionsPolicy  string `env:"SECURITY_PERMISSIONS_POLICY" envDefault:"geolocation=(), microphone=(), camera=()"`
}

// ValidationConfig holds input validation settings.
type ValidationConfig struct {
	StrictEmailValidation bool  `env:"VALIDATION_STRICT_EMAIL" envDefault:"false"`
	BlockDisposableEmail  bool  `env:"VALIDATION_BLOCK_DISPOSABLE_EMAIL" envDefault:"false"`
	MaxRequestBodySize    int64 `env:"VALIDATION_MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads the environment without validating, for commands that only
// need the database settings.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL"))
	}
	switch c.RefreshStore {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when REFRESH_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("REFRESH_STORE must be postgres or redis, got %q", c.RefreshStore))
	}
	switch c.HashAlgorithm {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("HASH_ALGORITHM must be argon2id or bcrypt, got %q", c.HashAlgorithm))
	}
	if c.LockoutThreshold < 1 || c.LockoutDuration <= 0 {
		errs = append(errs, errors.New("lockout threshold and duration must be positive"))
	}
	if c.SweepInterval <= 0 || c.SweepRetention < 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive and SWEEP_RETENTION non-negative"))
	}
	if c.PasswordPolicy.MinLength < 8 {
		errs = append(errs, errors.New("PASSWORD_MIN_LENGTH must be at least 8"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/simple-accounts/internal/config"
	"github.com/tendant/simple-accounts/internal/httputil"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimiters groups the per-IP limiters by endpoint class.
type RateLimiters struct {
	Auth    func(http.Handler) http.Handler
	Refresh func(http.Handler) http.Handler
	Profile func(http.Handler) http.Handler
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return NoRateLimit()
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", httputil.ClientIP(r),
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return passthrough
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// NewRateLimiters creates the limiters described by cfg.
func NewRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) RateLimiters {
	if !cfg.Enabled {
		return RateLimiters{Auth: NoRateLimit(), Refresh: NoRateLimit(), Profile: NoRateLimit()}
	}
	limit := func(requests, windowMinutes int) func(http.Handler) http.Handler {
		return RateLimit(RateLimitConfig{
			Requests: requests,
			Window:   time.Duration(windowMinutes) * time.Minute,
			Logger:   logger,
		})
	}
	return RateLimiters{
		Auth:    limit(cfg.AuthRequestsPerMinute, cfg.AuthWindowMinutes),
		Refresh: limit(cfg.RefreshRequestsPerMinute, cfg.RefreshWindowMinutes),
		Profile: limit(cfg.ProfileRequestsPerMinute, cfg.ProfileWindowMinutes),
	}
}

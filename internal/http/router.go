package http

import (
	"log/slog"
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-accounts/internal/config"
	"github.com/tendant/simple-accounts/internal/http/features/me"
	"github.com/tendant/simple-accounts/internal/http/features/session"
	"github.com/tendant/simple-accounts/internal/http/features/users"
	"github.com/tendant/simple-accounts/internal/http/middleware"
	"github.com/tendant/simple-accounts/internal/httputil"
	"github.com/tendant/simple-accounts/internal/metrics"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/directory"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Engine          *auth.Engine
	Directory       *directory.Service
	Metrics         *metrics.Metrics // nil disables /metrics
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
	CookieSecure    bool // Whether to use Secure flag on cookies (should be true for HTTPS)
	SentryEnabled   bool
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Recover(cfg.Logger))
	if cfg.SentryEnabled {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	rateLimiters := middleware.NewRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	requireAuth := middleware.Auth(cfg.Engine.Tokens())
	requireAdmin := middleware.RequireRole(domain.RoleAdmin)

	cookieConfig := httputil.DefaultCookieConfig()
	cookieConfig.Secure = cfg.CookieSecure

	sessionHandler := session.NewHandler(cfg.Logger, cfg.Engine, cookieConfig)
	meHandler := me.NewHandler(cfg.Logger, cfg.Engine, cfg.Directory, cookieConfig)
	usersHandler := users.NewHandler(cfg.Logger, cfg.Engine, cfg.Directory)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rateLimiters.Auth)
			r.Post("/sign-up", sessionHandler.Register)
			r.Post("/sign-in", sessionHandler.Login)
		})
		r.With(rateLimiters.Refresh).Post("/refresh", sessionHandler.Refresh)
		r.Post("/sign-out", sessionHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(rateLimiters.Profile)
			r.Post("/sign-out/all", sessionHandler.LogoutAll)
			r.Get("/me", meHandler.Session)
			r.Patch("/change-password", meHandler.ChangePassword)
		})
	})

	r.Route("/v1/users", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(rateLimiters.Profile)

		r.Get("/", usersHandler.List)
		r.Get("/me", meHandler.GetMe)
		r.Patch("/me", meHandler.UpdateMe)
		r.Get("/{id}", usersHandler.Get)
		r.Post("/{id}/follow", usersHandler.Follow)
		r.Delete("/{id}/follow", usersHandler.Unfollow)
		r.Get("/{id}/followers", usersHandler.Followers)
		r.Get("/{id}/following", usersHandler.Following)

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/", usersHandler.Create)
			r.Get("/stats", usersHandler.Stats)
			r.Patch("/{id}", usersHandler.Update)
			r.Patch("/{id}/status", usersHandler.UpdateStatus)
			r.Delete("/{id}", usersHandler.Delete)
		})
	})

	return r
}

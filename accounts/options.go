package accounts

import (
	"github.com/tendant/simple-accounts/internal/config"
)

// RateLimit is a per-IP budget of Requests every WindowMinutes for one
// endpoint group. A zero value leaves the group unlimited.
type RateLimit struct {
	Requests      int
	WindowMinutes int
}

// RateLimits holds the budgets for each endpoint group.
type RateLimits struct {
	Enabled bool

	// Auth covers sign-up and sign-in.
	Auth RateLimit
	// Refresh covers token refresh and sign-out.
	Refresh RateLimit
	// Profile covers the authenticated account and user routes.
	Profile RateLimit
}

func (l RateLimits) config() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:                  l.Enabled,
		AuthRequestsPerMinute:    l.Auth.Requests,
		AuthWindowMinutes:        l.Auth.WindowMinutes,
		RefreshRequestsPerMinute: l.Refresh.Requests,
		RefreshWindowMinutes:     l.Refresh.WindowMinutes,
		ProfileRequestsPerMinute: l.Profile.Requests,
		ProfileWindowMinutes:     l.Profile.WindowMinutes,
	}
}

// SecurityHeaders sets the response headers added to every route. Empty
// strings and a zero HSTSMaxAge omit the corresponding header.
type SecurityHeaders struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// DefaultSecurityHeaders returns the headers Router uses.
func DefaultSecurityHeaders() SecurityHeaders {
	return SecurityHeaders{
		Enabled:            true,
		CSP:                "default-src 'none'; frame-ancestors 'none'",
		FrameOptions:       "DENY",
		ContentTypeOptions: "nosniff",
		ReferrerPolicy:     "no-referrer",
	}
}

func (h SecurityHeaders) config() config.SecurityHeadersConfig {
	return config.SecurityHeadersConfig{
		Enabled:            h.Enabled,
		CSP:                h.CSP,
		HSTSMaxAge:         h.HSTSMaxAge,
		FrameOptions:       h.FrameOptions,
		ContentTypeOptions: h.ContentTypeOptions,
		XSSProtection:      h.XSSProtection,
		ReferrerPolicy:     h.ReferrerPolicy,
		PermissionsPolicy:  h.PermissionsPolicy,
	}
}

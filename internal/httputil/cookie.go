package httputil

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
	// The refresh token is only verifiable together with its account, so
	// web clients carry the account ID alongside it.
	accountIDCookie = "account_id"
)

// CookieConfig holds cookie configuration.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool // Set to true in production (HTTPS)
	SameSite http.SameSite
}

// DefaultCookieConfig returns default cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteLaxMode,
	}
}

// SetAuthCookies sets HttpOnly cookies for the access token, the refresh
// token and the owning account ID.
func SetAuthCookies(w http.ResponseWriter, accountID uuid.UUID, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, cfg CookieConfig) {
	setCookie(w, accessTokenCookie, accessToken, int(accessTTL.Seconds()), cfg)
	setCookie(w, refreshTokenCookie, refreshToken, int(refreshTTL.Seconds()), cfg)
	setCookie(w, accountIDCookie, accountID.String(), int(refreshTTL.Seconds()), cfg)
}

// ClearAuthCookies clears auth cookies.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie, accountIDCookie} {
		setCookie(w, name, "", -1, cfg)
	}
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// GetRefreshTokenFromCookie extracts refresh token from cookie.
func GetRefreshTokenFromCookie(r *http.Request) (string, bool) {
	return cookieValue(r, refreshTokenCookie)
}

// GetAccessTokenFromCookie extracts access token from cookie.
func GetAccessTokenFromCookie(r *http.Request) (string, bool) {
	return cookieValue(r, accessTokenCookie)
}

// GetAccountIDFromCookie extracts the account ID paired with the refresh
// token cookie.
func GetAccountIDFromCookie(r *http.Request) (uuid.UUID, bool) {
	v, ok := cookieValue(r, accountIDCookie)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func cookieValue(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// IsMobileClient checks if request is from a mobile client.
// Mobile clients should set header: X-Client-Type: mobile
func IsMobileClient(r *http.Request) bool {
	return r.Header.Get("X-Client-Type") == "mobile"
}

// ClientIP returns the first X-Forwarded-For hop, else the remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

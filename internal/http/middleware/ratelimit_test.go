package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tendant/simple-accounts/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveFrom(h http.Handler, ip, path string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Requests: 2,
		Window:   time.Minute,
		Logger:   discardLogger(),
	})(okHandler())

	for i := 0; i < 2; i++ {
		if code := serveFrom(handler, "192.168.1.1", "/v1/auth/sign-in"); code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want %d", i+1, code, http.StatusOK)
		}
	}
	if code := serveFrom(handler, "192.168.1.1", "/v1/auth/sign-in"); code != http.StatusTooManyRequests {
		t.Errorf("third request: got status %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := serveFrom(handler, "192.168.1.2", "/v1/auth/sign-in"); code != http.StatusOK {
		t.Errorf("other IP: got status %d, want %d", code, http.StatusOK)
	}
	if code := serveFrom(handler, "192.168.1.1", "/v1/auth/sign-up"); code != http.StatusOK {
		t.Errorf("other endpoint: got status %d, want %d", code, http.StatusOK)
	}
}

func TestNewRateLimiters_Disabled(t *testing.T) {
	limiters := NewRateLimiters(config.RateLimitConfig{Enabled: false}, discardLogger())

	handler := limiters.Auth(okHandler())
	for i := 0; i < 100; i++ {
		if code := serveFrom(handler, "10.0.0.1", "/test"); code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want %d", i, code, http.StatusOK)
		}
	}
}

func TestNewRateLimiters_Enabled(t *testing.T) {
	limiters := NewRateLimiters(config.RateLimitConfig{
		Enabled:                  true,
		AuthRequestsPerMinute:    1,
		AuthWindowMinutes:        1,
		RefreshRequestsPerMinute: 5,
		RefreshWindowMinutes:     1,
	}, discardLogger())

	if limiters.Auth == nil || limiters.Refresh == nil || limiters.Profile == nil {
		t.Fatal("limiters should not be nil")
	}

	auth := limiters.Auth(okHandler())
	serveFrom(auth, "10.0.0.1", "/test")
	if code := serveFrom(auth, "10.0.0.1", "/test"); code != http.StatusTooManyRequests {
		t.Errorf("auth limiter: got status %d, want %d", code, http.StatusTooManyRequests)
	}

	// Zero budget means the group is unlimited.
	profile := limiters.Profile(okHandler())
	for i := 0; i < 10; i++ {
		if code := serveFrom(profile, "10.0.0.1", "/test"); code != http.StatusOK {
			t.Fatalf("profile limiter: got status %d", code)
		}
	}
}

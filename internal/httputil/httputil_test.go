package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestDomainError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"conflict", domain.ErrAccountAlreadyExists, http.StatusConflict, domain.ErrAccountAlreadyExists.Error()},
		{"bad credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{"inactive looks like bad credentials", domain.ErrAccountInactive, http.StatusUnauthorized, "invalid credentials"},
		{"refresh denied", domain.ErrRefreshDenied, http.StatusUnauthorized, "invalid or expired refresh token"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, domain.ErrForbidden.Error()},
		{"wrapped validation", fmt.Errorf("%w: too short", domain.ErrWeakPassword), http.StatusBadRequest, "password does not meet requirements: too short"},
		{"not found", domain.ErrAccountNotFound, http.StatusNotFound, domain.ErrAccountNotFound.Error()},
		{"timeout", domain.ErrStoreTimeout, http.StatusServiceUnavailable, "service temporarily unavailable, please retry"},
		{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal server error"},
		{"crypto", domain.ErrCrypto, http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			DomainError(rec, req, nil, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec); got != tt.wantMessage {
				t.Errorf("message = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestDomainError_LockedSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	// Until is on a fake clock far in the past; only Remaining counts.
	locked := &domain.LockedError{
		Until:     time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		Remaining: 90*time.Minute + 500*time.Millisecond,
	}
	DomainError(rec, req, nil, locked)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "5401" {
		t.Errorf("Retry-After = %q, want 5401", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Name string }

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ada"}`))
	if !DecodeJSON(rec, req, &v) || v.Name != "ada" {
		t.Fatalf("DecodeJSON failed: %+v", v)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	if DecodeJSON(rec, req, &v) || rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("a", 100)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 10)
	if DecodeJSON(rec, req, &v) || rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestAuthCookies(t *testing.T) {
	accountID := uuid.New()
	rec := httptest.NewRecorder()
	SetAuthCookies(rec, accountID, "access", "refresh", time.Minute, time.Hour, DefaultCookieConfig())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if !c.HttpOnly {
			t.Errorf("cookie %s is not HttpOnly", c.Name)
		}
		req.AddCookie(c)
	}

	if v, ok := GetAccessTokenFromCookie(req); !ok || v != "access" {
		t.Errorf("access cookie = %q, %v", v, ok)
	}
	if v, ok := GetRefreshTokenFromCookie(req); !ok || v != "refresh" {
		t.Errorf("refresh cookie = %q, %v", v, ok)
	}
	if id, ok := GetAccountIDFromCookie(req); !ok || id != accountID {
		t.Errorf("account cookie = %v, %v", id, ok)
	}

	rec = httptest.NewRecorder()
	ClearAuthCookies(rec, DefaultCookieConfig())
	cookies := rec.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("cleared %d cookies, want 3", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s MaxAge = %d, want < 0", c.Name, c.MaxAge)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if got := ClientIP(req); got != "10.1.2.3" {
		t.Errorf("ClientIP() = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("ClientIP() = %q", got)
	}
}

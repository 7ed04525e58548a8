package me

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/internal/http/middleware"
	"github.com/tendant/simple-accounts/internal/httputil"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// Neither the engine nor the directory is reached on these paths.
func newTestHandler() *Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil, httputil.DefaultCookieConfig())
}

func authenticated(r *http.Request) *http.Request {
	claims := &auth.AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Role:             domain.RoleUser,
	}
	return r.WithContext(middleware.WithAccount(r.Context(), claims))
}

func TestHandlers_Unauthenticated(t *testing.T) {
	h := newTestHandler()

	handlers := map[string]http.HandlerFunc{
		"session":         h.Session,
		"get me":          h.GetMe,
		"update me":       h.UpdateMe,
		"change password": h.ChangePassword,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			fn(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
			}
		})
	}
}

func TestUpdateMe_RejectsRole(t *testing.T) {
	h := newTestHandler()

	req := authenticated(httptest.NewRequest(http.MethodPatch, "/v1/users/me", strings.NewReader(`{"role":"admin"}`)))
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestChangePassword_Validation(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"current_password":`},
		{"missing new password", `{"current_password":"Secret123"}`},
		{"missing current password", `{"new_password":"Secret456"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authenticated(httptest.NewRequest(http.MethodPatch, "/v1/auth/change-password", strings.NewReader(tt.body)))
			w := httptest.NewRecorder()
			h.ChangePassword(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

package me

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-accounts/internal/http/middleware"
	"github.com/tendant/simple-accounts/internal/httputil"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/directory"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// Handler handles endpoints acting on the caller's own account.
type Handler struct {
	logger       *slog.Logger
	engine       *auth.Engine
	directory    *directory.Service
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, engine *auth.Engine, dir *directory.Service, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		engine:       engine,
		directory:    dir,
		cookieConfig: cookieConfig,
	}
}

// UpdateRequest represents a profile update request. Role is accepted only
// so that it can be refused.
type UpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Email    *string          `json:"email,omitempty"`
	Location *domain.Location `json:"location,omitempty"`
	Role     *domain.Role     `json:"role,omitempty"`
}

// ChangePasswordRequest represents a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Session returns the caller wrapped as {"user": profile}.
// GET /v1/auth/me
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	account, ok := h.current(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]domain.Profile{"user": account.PublicProfile()})
}

// GetMe returns the current account's profile.
// GET /v1/users/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	account, ok := h.current(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, account.PublicProfile())
}

// UpdateMe updates the current account's profile.
// PATCH /v1/users/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Role != nil {
		httputil.Error(w, http.StatusForbidden, "role cannot be changed on your own account")
		return
	}

	account, err := h.directory.UpdateProfile(r.Context(), accountID, domain.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Location: req.Location,
	})
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account.PublicProfile())
}

// ChangePassword replaces the password and ends every session.
// PATCH /v1/auth/change-password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httputil.Error(w, http.StatusBadRequest, "current_password and new_password are required")
		return
	}

	if err := h.engine.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	// Every refresh token is gone; drop the now useless cookies too.
	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	account, err := h.engine.Account(r.Context(), accountID)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return nil, false
	}
	return account, true
}

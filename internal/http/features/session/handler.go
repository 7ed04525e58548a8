package session

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/internal/http/middleware"
	"github.com/tendant/simple-accounts/internal/httputil"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// Handler handles sign-up, sign-in and session endpoints.
type Handler struct {
	logger       *slog.Logger
	engine       *auth.Engine
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, engine *auth.Engine, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		engine:       engine,
		cookieConfig: cookieConfig,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Location *domain.Location `json:"location,omitempty"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh token for mobile clients. Web clients
// send both values as cookies.
type RefreshRequest struct {
	AccountID    string `json:"account_id"`
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse represents a token response. Tokens are omitted for web
// clients, which receive them as cookies.
type TokenResponse struct {
	AccountID    string          `json:"account_id"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
	User         *domain.Profile `json:"user,omitempty"`
}

// Register handles account registration.
// POST /v1/auth/sign-up
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		httputil.Error(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	account, err := h.engine.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Location: req.Location,
	})
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, account.PublicProfile())
}

// Login handles sign-in.
// POST /v1/auth/sign-in
//
// For web clients: Sets HttpOnly cookies, returns the profile.
// For mobile clients (X-Client-Type: mobile): Returns tokens in response body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.engine.Login(r.Context(), req.Email, req.Password, issueOpts(r))
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	accountID, _ := uuid.Parse(result.Profile.ID)
	h.writeTokenResponse(w, r, accountID, result.Tokens, &result.Profile)
}

// Refresh rotates the refresh token.
// POST /v1/auth/refresh
//
// For web clients: Reads refresh token from cookie, sets new cookies.
// For mobile clients: Reads/returns tokens in request/response body.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	accountID, refreshToken, ok := h.presentedToken(w, r)
	if !ok {
		return
	}
	if refreshToken == "" {
		httputil.Error(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.engine.Refresh(r.Context(), accountID, refreshToken, issueOpts(r))
	if err != nil {
		if domain.Classify(err) == domain.KindUnauthorized && !httputil.IsMobileClient(r) {
			httputil.ClearAuthCookies(w, h.cookieConfig)
		}
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	h.writeTokenResponse(w, r, accountID, tokens, nil)
}

// Logout revokes the presented session.
// POST /v1/auth/sign-out
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var (
		accountID    uuid.UUID
		refreshToken string
	)
	if httputil.IsMobileClient(r) {
		var req RefreshRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		accountID, _ = uuid.Parse(req.AccountID)
		refreshToken = req.RefreshToken
	} else {
		accountID, _ = httputil.GetAccountIDFromCookie(r)
		refreshToken, _ = httputil.GetRefreshTokenFromCookie(r)
	}

	if accountID != uuid.Nil && refreshToken != "" {
		// Unknown tokens are not reported, to prevent enumeration.
		if err := h.engine.Logout(r.Context(), accountID, refreshToken); err != nil {
			h.logger.Warn("failed to revoke session", "account_id", accountID, "error", err)
		}
	}

	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes all sessions for the current account.
// POST /v1/auth/sign-out/all
// Requires authentication
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.engine.RevokeSessions(r.Context(), accountID); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}
	w.WriteHeader(http.StatusNoContent)
}

// presentedToken reads the account ID and refresh token from the body for
// mobile clients and from cookies otherwise. It writes the error response
// when it returns false.
func (h *Handler) presentedToken(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	if httputil.IsMobileClient(r) {
		var req RefreshRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return uuid.Nil, "", false
		}
		if req.RefreshToken == "" {
			return uuid.Nil, "", true
		}
		accountID, err := uuid.Parse(req.AccountID)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "account_id is required")
			return uuid.Nil, "", false
		}
		return accountID, req.RefreshToken, true
	}

	refreshToken, ok := httputil.GetRefreshTokenFromCookie(r)
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "refresh token not found")
		return uuid.Nil, "", false
	}
	accountID, ok := httputil.GetAccountIDFromCookie(r)
	if !ok {
		httputil.ClearAuthCookies(w, h.cookieConfig)
		httputil.Error(w, http.StatusUnauthorized, "refresh token not found")
		return uuid.Nil, "", false
	}
	return accountID, refreshToken, true
}

// writeTokenResponse writes tokens as cookies (web) or JSON (mobile).
func (h *Handler) writeTokenResponse(w http.ResponseWriter, r *http.Request, accountID uuid.UUID, tokens *domain.TokenPair, profile *domain.Profile) {
	resp := TokenResponse{
		AccountID: accountID.String(),
		TokenType: tokens.TokenType,
		ExpiresIn: tokens.ExpiresIn,
		User:      profile,
	}

	if httputil.IsMobileClient(r) {
		resp.AccessToken = tokens.AccessToken
		resp.RefreshToken = tokens.RefreshToken
		httputil.JSON(w, http.StatusOK, resp)
		return
	}

	// Web: set HttpOnly cookies
	tokenService := h.engine.Tokens()
	httputil.SetAuthCookies(
		w,
		accountID,
		tokens.AccessToken,
		tokens.RefreshToken,
		tokenService.AccessTokenTTL(),
		tokenService.RefreshTokenTTL(),
		h.cookieConfig,
	)
	httputil.JSON(w, http.StatusOK, resp)
}

func issueOpts(r *http.Request) auth.IssueOpts {
	return auth.IssueOpts{
		IP:        httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

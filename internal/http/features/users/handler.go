package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/internal/http/middleware"
	"github.com/tendant/simple-accounts/internal/httputil"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/directory"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// Handler handles the account directory and follow graph.
type Handler struct {
	logger    *slog.Logger
	engine    *auth.Engine
	directory *directory.Service
}

// NewHandler creates a new users handler.
func NewHandler(logger *slog.Logger, engine *auth.Engine, dir *directory.Service) *Handler {
	return &Handler{
		logger:    logger,
		engine:    engine,
		directory: dir,
	}
}

// CreateRequest represents an admin account creation.
type CreateRequest struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Role     domain.Role      `json:"role,omitempty"`
	Location *domain.Location `json:"location,omitempty"`
}

// UpdateRequest represents an admin profile update.
type UpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Email    *string          `json:"email,omitempty"`
	Location *domain.Location `json:"location,omitempty"`
	Role     *domain.Role     `json:"role,omitempty"`
}

// StatusRequest represents a status change.
type StatusRequest struct {
	Status domain.Status `json:"status"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Create creates an account with an explicit role.
// POST /v1/users (admin)
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		httputil.Error(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}

	account, err := h.engine.CreateAccount(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Location: req.Location,
	}, req.Role)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, account.PublicProfile())
}

// List returns one page of profiles.
// GET /v1/users?page=&limit=&role=&status=&search=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := domain.AccountQuery{
		Role:   domain.Role(query.Get("role")),
		Status: domain.Status(query.Get("status")),
		Search: query.Get("search"),
	}

	var ok bool
	if q.Page, ok = intParam(w, query.Get("page"), "page"); !ok {
		return
	}
	if q.Limit, ok = intParam(w, query.Get("limit"), "limit"); !ok {
		return
	}

	accounts, err := h.directory.List(r.Context(), q)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, profiles(accounts))
}

// Stats returns directory counters.
// GET /v1/users/stats (admin)
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.directory.Stats(r.Context())
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}

// Get returns one profile.
// GET /v1/users/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	account, err := h.directory.Get(r.Context(), id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, account.PublicProfile())
}

// Update applies an admin profile update, role included.
// PATCH /v1/users/{id} (admin)
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	account, err := h.directory.UpdateProfile(r.Context(), id, domain.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Location: req.Location,
		Role:     req.Role,
	})
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, account.PublicProfile())
}

// UpdateStatus changes an account's status.
// PATCH /v1/users/{id}/status (admin)
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	account, err := h.directory.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, account.PublicProfile())
}

// Delete removes an account.
// DELETE /v1/users/{id} (admin)
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.directory.Delete(r.Context(), id); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}

	h.logger.Info("account deleted by admin", "account_id", id, "by", callerID(r))
	w.WriteHeader(http.StatusNoContent)
}

// Follow makes the caller follow {id}.
// POST /v1/users/{id}/follow
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.directory.Follow(r.Context(), callerID(r), id); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "User followed successfully"})
}

// Unfollow removes the caller's edge to {id}.
// DELETE /v1/users/{id}/follow
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.directory.Unfollow(r.Context(), callerID(r), id); err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "User unfollowed successfully"})
}

// Followers lists who follows {id}.
// GET /v1/users/{id}/followers
func (h *Handler) Followers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	accounts, err := h.directory.Followers(r.Context(), id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, profiles(accounts))
}

// Following lists whom {id} follows.
// GET /v1/users/{id}/following
func (h *Handler) Following(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	accounts, err := h.directory.Following(r.Context(), id)
	if err != nil {
		httputil.DomainError(w, r, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, profiles(accounts))
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

// callerID is only called behind middleware.Auth, which guarantees the ID.
func callerID(r *http.Request) uuid.UUID {
	id, _ := middleware.GetAccountID(r.Context())
	return id
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

func profiles(accounts []*domain.Account) []domain.Profile {
	out := make([]domain.Profile, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.PublicProfile())
	}
	return out
}

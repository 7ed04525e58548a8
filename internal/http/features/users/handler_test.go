package users

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// The services are never reached on these paths, so they are left nil.
func newTestHandler() *Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil)
}

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestPathID(t *testing.T) {
	h := newTestHandler()
	handlers := map[string]http.HandlerFunc{
		"get":       h.Get,
		"update":    h.Update,
		"status":    h.UpdateStatus,
		"delete":    h.Delete,
		"follow":    h.Follow,
		"unfollow":  h.Unfollow,
		"followers": h.Followers,
		"following": h.Following,
	}

	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			req := withID(httptest.NewRequest(http.MethodGet, "/v1/users/abc", nil), "abc")
			w := httptest.NewRecorder()
			handler(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestList_InvalidPaging(t *testing.T) {
	h := newTestHandler()

	for _, query := range []string{"page=x", "limit=1.5"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/users?"+query, nil)
		w := httptest.NewRecorder()
		h.List(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", query, http.StatusBadRequest, w.Code)
		}
	}
}

func TestCreate_MissingFields(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader(`{"email":"bob@example.com"}`))
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestProfiles(t *testing.T) {
	if got := profiles(nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}

	id := uuid.New()
	got := profiles([]*domain.Account{{ID: id, Email: "ada@example.com", Role: domain.RoleUser}})
	if len(got) != 1 || got[0].ID != id.String() {
		t.Errorf("unexpected profiles %#v", got)
	}
}

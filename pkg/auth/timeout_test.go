package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
	"github.com/tendant/simple-accounts/pkg/repository/memstore"
)

// stallingStore blocks lookups until the context is done.
type stallingStore struct {
	*memstore.Store
}

func (stallingStore) FindByEmail(ctx context.Context, _ string) (*domain.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingStore) ListActive(ctx context.Context, _ uuid.UUID, _ time.Time) ([]*domain.RefreshToken, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithAccountTimeout(t *testing.T) {
	s := WithAccountTimeout(stallingStore{memstore.New()}, 20*time.Millisecond)

	_, err := s.FindByEmail(context.Background(), "alice@example.com")
	if !errors.Is(err, domain.ErrStoreTimeout) {
		t.Fatalf("FindByEmail() error = %v, want ErrStoreTimeout", err)
	}
	if !domain.Classify(err).Retryable() {
		t.Error("store timeout should be retryable")
	}

	// Calls that finish in time pass through untouched.
	_, err = s.FindByID(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("FindByID() error = %v, want ErrAccountNotFound", err)
	}
}

func TestWithAccountTimeout_CallerCancel(t *testing.T) {
	s := WithAccountTimeout(stallingStore{memstore.New()}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.FindByEmail(ctx, "alice@example.com")
	if errors.Is(err, domain.ErrStoreTimeout) || !errors.Is(err, context.Canceled) {
		t.Errorf("FindByEmail() error = %v, want context.Canceled", err)
	}
}

func TestWithRefreshTokenTimeout(t *testing.T) {
	s := WithRefreshTokenTimeout(stallingStore{memstore.New()}, 20*time.Millisecond)

	_, err := s.ListActive(context.Background(), uuid.New(), time.Now())
	if !errors.Is(err, domain.ErrStoreTimeout) {
		t.Errorf("ListActive() error = %v, want ErrStoreTimeout", err)
	}
	if _, err := s.DeleteStale(context.Background(), time.Now()); err != nil {
		t.Errorf("DeleteStale() error = %v", err)
	}
}

func TestWithAccountTimeout_ZeroDisables(t *testing.T) {
	store := memstore.New()
	if got := WithAccountTimeout(store, 0); got != AccountStore(store) {
		t.Error("zero timeout should return the store unchanged")
	}
}

func TestEngine_LoginStoreTimeout(t *testing.T) {
	f := newEngineFixture(t, func(cfg *EngineConfig, _ *TokenConfig) {
		cfg.Accounts = stallingStore{cfg.Accounts.(*memstore.Store)}
		cfg.StoreTimeout = 20 * time.Millisecond
	})

	_, err := f.engine.Login(context.Background(), "alice@example.com", "Wonderland#1", IssueOpts{})
	if !errors.Is(err, domain.ErrStoreTimeout) {
		t.Errorf("Login() error = %v, want ErrStoreTimeout", err)
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// WithAccountTimeout bounds every call on s by d. A call that runs past its
// deadline fails with domain.ErrStoreTimeout.
func WithAccountTimeout(s AccountStore, d time.Duration) AccountStore {
	if d <= 0 {
		return s
	}
	if t, ok := s.(*timeoutAccounts); ok {
		s = t.next
	}
	return &timeoutAccounts{next: s, timeout: d}
}

// WithRefreshTokenTimeout bounds every call on s by d.
func WithRefreshTokenTimeout(s RefreshTokenStore, d time.Duration) RefreshTokenStore {
	if d <= 0 {
		return s
	}
	if t, ok := s.(*timeoutRefreshTokens); ok {
		s = t.next
	}
	return &timeoutRefreshTokens{next: s, timeout: d}
}

func withTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %v", domain.ErrStoreTimeout, err)
	}
	return err
}

type timeoutAccounts struct {
	next    AccountStore
	timeout time.Duration
}

func (s *timeoutAccounts) FindByEmail(ctx context.Context, email string) (account *domain.Account, err error) {
	err = withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		account, err = s.next.FindByEmail(ctx, email)
		return err
	})
	return account, err
}

func (s *timeoutAccounts) FindByID(ctx context.Context, id uuid.UUID) (account *domain.Account, err error) {
	err = withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		account, err = s.next.FindByID(ctx, id)
		return err
	})
	return account, err
}

func (s *timeoutAccounts) GetCredential(ctx context.Context, accountID uuid.UUID) (cred *domain.Credential, err error) {
	err = withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		cred, err = s.next.GetCredential(ctx, accountID)
		return err
	})
	return cred, err
}

func (s *timeoutAccounts) Create(ctx context.Context, account *domain.Account, cred *domain.Credential) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.Create(ctx, account, cred)
	})
}

func (s *timeoutAccounts) UpdateLockout(ctx context.Context, id uuid.UUID, expectedVersion int64, state domain.LockoutState) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.UpdateLockout(ctx, id, expectedVersion, state)
	})
}

func (s *timeoutAccounts) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.UpdatePassword(ctx, id, passwordHash, at)
	})
}

func (s *timeoutAccounts) UpdateLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.UpdateLastActive(ctx, id, at)
	})
}

type timeoutRefreshTokens struct {
	next    RefreshTokenStore
	timeout time.Duration
}

func (s *timeoutRefreshTokens) ListActive(ctx context.Context, accountID uuid.UUID, now time.Time) (tokens []*domain.RefreshToken, err error) {
	err = withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		tokens, err = s.next.ListActive(ctx, accountID, now)
		return err
	})
	return tokens, err
}

func (s *timeoutRefreshTokens) Insert(ctx context.Context, token *domain.RefreshToken) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.Insert(ctx, token)
	})
}

func (s *timeoutRefreshTokens) Rotate(ctx context.Context, accountID, revokeID uuid.UUID, next *domain.RefreshToken, now time.Time) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.Rotate(ctx, accountID, revokeID, next, now)
	})
}

func (s *timeoutRefreshTokens) Revoke(ctx context.Context, accountID, id uuid.UUID, now time.Time) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.Revoke(ctx, accountID, id, now)
	})
}

func (s *timeoutRefreshTokens) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.RevokeAll(ctx, accountID, now)
	})
}

func (s *timeoutRefreshTokens) DeleteStale(ctx context.Context, cutoff time.Time) (n int64, err error) {
	err = withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		n, err = s.next.DeleteStale(ctx, cutoff)
		return err
	})
	return n, err
}

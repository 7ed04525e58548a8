package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// AccountStore persists accounts, credentials and lockout state.
//
// UpdateLockout must be a conditional write: it succeeds only if the
// stored LockoutVersion still equals expectedVersion, and returns
// domain.ErrVersionConflict otherwise.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetCredential(ctx context.Context, accountID uuid.UUID) (*domain.Credential, error)
	Create(ctx context.Context, account *domain.Account, cred *domain.Credential) error
	UpdateLockout(ctx context.Context, id uuid.UUID, expectedVersion int64, state domain.LockoutState) error
	// UpdatePassword replaces the credential and clears lockout state.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error
	UpdateLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RefreshTokenStore persists hashed refresh token records.
//
// Rotate revokes the record revokeID and inserts next as one atomic unit.
// If revokeID was already revoked it returns domain.ErrTokenRevoked and
// inserts nothing.
type RefreshTokenStore interface {
	ListActive(ctx context.Context, accountID uuid.UUID, now time.Time) ([]*domain.RefreshToken, error)
	Insert(ctx context.Context, token *domain.RefreshToken) error
	Rotate(ctx context.Context, accountID, revokeID uuid.UUID, next *domain.RefreshToken, now time.Time) error
	Revoke(ctx context.Context, accountID, id uuid.UUID, now time.Time) error
	RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) error
	// DeleteStale removes expired records and records revoked before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Hasher is the one-way hash used for refresh tokens.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

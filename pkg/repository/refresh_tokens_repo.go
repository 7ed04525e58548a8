package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// RefreshTokensRepository handles hashed refresh token persistence.
type RefreshTokensRepository struct {
	db *sql.DB
}

// NewRefreshTokensRepository creates a new refresh tokens repository.
func NewRefreshTokensRepository(db *sql.DB) *RefreshTokensRepository {
	return &RefreshTokensRepository{db: db}
}

// ListActive returns the account's unrevoked, unexpired records, newest first.
func (r *RefreshTokensRepository) ListActive(ctx context.Context, accountID uuid.UUID, now time.Time) ([]*domain.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, token_hash, created_at, expires_at, revoked_at, ip, user_agent
		FROM refresh_tokens
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`, accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*domain.RefreshToken
	for rows.Next() {
		t := &domain.RefreshToken{}
		var revokedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &revokedAt, &t.IP, &t.UserAgent); err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			t.Revoked = true
			t.RevokedAt = &revokedAt.Time
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Insert stores a new record.
func (r *RefreshTokensRepository) Insert(ctx context.Context, token *domain.RefreshToken) error {
	return insertRefreshToken(ctx, r.db, token)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, db execer, token *domain.RefreshToken) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token_hash, created_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, token.ID, token.AccountID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.IP, token.UserAgent)
	return err
}

// Rotate revokes revokeID and inserts next in one transaction. The
// conditional update makes a second redemption of the same record fail
// with domain.ErrTokenRevoked.
func (r *RefreshTokensRepository) Rotate(ctx context.Context, accountID, revokeID uuid.UUID, next *domain.RefreshToken, now time.Time) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := revokeOne(ctx, tx, accountID, revokeID, now); err != nil {
			return err
		}
		return insertRefreshToken(ctx, tx, next)
	})
}

// Revoke revokes a single record.
func (r *RefreshTokensRepository) Revoke(ctx context.Context, accountID, id uuid.UUID, now time.Time) error {
	return revokeOne(ctx, r.db, accountID, id, now)
}

type queryExecer interface {
	execer
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func revokeOne(ctx context.Context, db queryExecer, accountID, id uuid.UUID, now time.Time) error {
	var revokedID uuid.UUID
	err := db.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $3
		WHERE id = $1 AND account_id = $2 AND revoked_at IS NULL
		RETURNING id
	`, id, accountID, now).Scan(&revokedID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE id = $1 AND account_id = $2)`, id, accountID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrTokenRevoked
	}
	return domain.ErrTokenNotFound
}

// RevokeAll revokes every unrevoked record of the account.
func (r *RefreshTokensRepository) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE account_id = $1 AND revoked_at IS NULL
	`, accountID, now)
	return err
}

// DeleteStale deletes records that expired or were revoked before cutoff.
func (r *RefreshTokensRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR revoked_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

// Follow inserts a follow edge.
func (r *AccountsRepository) Follow(ctx context.Context, follow domain.Follow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES ($1, $2, $3)
	`, follow.FollowerID, follow.FolloweeID, follow.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return domain.ErrAlreadyFollowing
	case isForeignKeyViolation(err):
		return domain.ErrAccountNotFound
	}
	return err
}

// Unfollow deletes a follow edge. Missing edges are ignored.
func (r *AccountsRepository) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	return err
}

// Followers returns the accounts following id, most recent first.
func (r *AccountsRepository) Followers(ctx context.Context, id uuid.UUID) ([]*domain.Account, error) {
	return r.edgeAccounts(ctx, `
		SELECT `+prefixed("a", accountColumns)+`
		FROM follows f JOIN accounts a ON a.id = f.follower_id
		WHERE f.followee_id = $1
		ORDER BY f.created_at DESC
	`, id)
}

// Following returns the accounts id follows, most recent first.
func (r *AccountsRepository) Following(ctx context.Context, id uuid.UUID) ([]*domain.Account, error) {
	return r.edgeAccounts(ctx, `
		SELECT `+prefixed("a", accountColumns)+`
		FROM follows f JOIN accounts a ON a.id = f.followee_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC
	`, id)
}

func (r *AccountsRepository) edgeAccounts(ctx context.Context, query string, id uuid.UUID) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

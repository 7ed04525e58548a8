// Package directory implements the user directory and follow graph on top
// of the account store.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps the row offset well inside an int32.
	MaxPage         = 1_000_000
	maxSearchLength = 100
)

// Store is the persistence the directory needs.
//
// UpdateProfile returns domain.ErrAccountAlreadyExists if the new email is
// taken. Follow returns domain.ErrAlreadyFollowing for a duplicate edge.
type Store interface {
	List(ctx context.Context, q domain.AccountQuery) ([]*domain.Account, error)
	Stats(ctx context.Context) (*domain.AccountStats, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update domain.ProfileUpdate, at time.Time) (*domain.Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) (*domain.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Follow(ctx context.Context, follow domain.Follow) error
	Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error
	Followers(ctx context.Context, id uuid.UUID) ([]*domain.Account, error)
	Following(ctx context.Context, id uuid.UUID) ([]*domain.Account, error)
}

// SessionRevoker ends every session of an account.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, accountID uuid.UUID) error
}

// Service manages directory reads, admin updates and follows.
type Service struct {
	store    Store
	sessions SessionRevoker
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a directory service. sessions may be nil, in which
// case deactivation does not revoke sessions.
func NewService(store Store, sessions SessionRevoker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns one page of accounts, newest first.
func (s *Service) List(ctx context.Context, q domain.AccountQuery) ([]*domain.Account, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, q)
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.store.FindByID(ctx, id)
}

// Stats returns directory counters.
func (s *Service) Stats(ctx context.Context) (*domain.AccountStats, error) {
	return s.store.Stats(ctx)
}

// UpdateProfile applies update to the account. Only admins may pass a
// Role; callers are responsible for that check.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update domain.ProfileUpdate) (*domain.Account, error) {
	if update.Name != nil {
		name, err := auth.ValidateName(*update.Name)
		if err != nil {
			return nil, err
		}
		update.Name = &name
	}
	if update.Email != nil {
		if err := auth.ValidateEmail(*update.Email, false, false); err != nil {
			return nil, err
		}
		email := auth.NormalizeEmail(*update.Email)
		update.Email = &email
	}
	if update.Role != nil && !update.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if update.Location != nil {
		update.Location = auth.SanitizeLocation(update.Location)
		if update.Location == nil {
			update.Location = &domain.Location{}
		}
	}

	account, err := s.store.UpdateProfile(ctx, id, update, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("account updated", "account_id", id)
	return account, nil
}

// UpdateStatus changes the account status. Moving an account out of
// active revokes all of its sessions.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.Account, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	account, err := s.store.UpdateStatus(ctx, id, status, s.now())
	if err != nil {
		return nil, err
	}

	if status != domain.StatusActive && s.sessions != nil {
		if err := s.sessions.RevokeSessions(ctx, id); err != nil {
			return nil, fmt.Errorf("revoke sessions: %w", err)
		}
	}

	s.logger.Info("account status changed", "account_id", id, "status", status)
	return account, nil
}

// Delete removes the account together with its follow edges and sessions.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if s.sessions != nil {
		if err := s.sessions.RevokeSessions(ctx, id); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", "account_id", id)
	return nil
}

// Follow makes followerID follow followeeID.
func (s *Service) Follow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	if followerID == followeeID {
		return domain.ErrSelfFollow
	}
	if err := s.requireAccounts(ctx, followerID, followeeID); err != nil {
		return err
	}
	return s.store.Follow(ctx, domain.Follow{
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  s.now(),
	})
}

// Unfollow removes the edge if present. Both accounts must exist.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	if err := s.requireAccounts(ctx, followerID, followeeID); err != nil {
		return err
	}
	return s.store.Unfollow(ctx, followerID, followeeID)
}

// Followers lists the accounts following id.
func (s *Service) Followers(ctx context.Context, id uuid.UUID) ([]*domain.Account, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Followers(ctx, id)
}

// Following lists the accounts id follows.
func (s *Service) Following(ctx context.Context, id uuid.UUID) ([]*domain.Account, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Following(ctx, id)
}

func (s *Service) requireAccounts(ctx context.Context, ids ...uuid.UUID) error {
	for _, id := range ids {
		if _, err := s.store.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func normalizeQuery(q domain.AccountQuery) (domain.AccountQuery, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		return q, fmt.Errorf("%w: page out of range", domain.ErrInvalidQuery)
	}
	switch {
	case q.Limit < 1:
		q.Limit = DefaultPageSize
	case q.Limit > MaxPageSize:
		q.Limit = MaxPageSize
	}
	if q.Role != "" && !q.Role.Valid() {
		return q, domain.ErrInvalidRole
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, domain.ErrInvalidStatus
	}
	q.Search = strings.TrimSpace(q.Search)
	if len(q.Search) > maxSearchLength {
		return q, fmt.Errorf("%w: search term too long", domain.ErrInvalidQuery)
	}
	return q, nil
}

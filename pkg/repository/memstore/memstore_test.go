package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-accounts/pkg/domain"
)

func seed(t *testing.T, s *Store, name, email string, role domain.Role, createdAt time.Time) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Role:      role,
		Status:    domain.StatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, s.Create(context.Background(), a, &domain.Credential{AccountID: a.ID, PasswordHash: "digest", UpdatedAt: createdAt}))
	return a
}

func TestStore_CreateFind(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	a := seed(t, s, "Ada", "ada@example.com", domain.RoleUser, now)

	got, err := s.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got.Name = "mutated"
	again, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name, "returned records are copies")

	cred, err := s.GetCredential(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "digest", cred.PasswordHash)

	dup := *a
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.Create(ctx, &dup, &domain.Credential{AccountID: dup.ID}), domain.ErrAccountAlreadyExists)

	_, err = s.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_UpdateLockoutCAS(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seed(t, s, "Ada", "ada@example.com", domain.RoleUser, time.Now())

	require.NoError(t, s.UpdateLockout(ctx, a.ID, 0, domain.LockoutState{Attempts: 1}))
	assert.ErrorIs(t, s.UpdateLockout(ctx, a.ID, 0, domain.LockoutState{Attempts: 2}), domain.ErrVersionConflict)

	got, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Lockout.Attempts)
	assert.EqualValues(t, 1, got.LockoutVersion)

	require.NoError(t, s.UpdatePassword(ctx, a.ID, "new-digest", time.Now()))
	got, err = s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Lockout.IsClear())
	assert.EqualValues(t, 2, got.LockoutVersion, "password writes bump the version")
}

func TestStore_RefreshTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	accountID := uuid.New()

	old := &domain.RefreshToken{ID: uuid.New(), AccountID: accountID, TokenHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.Insert(ctx, old))

	next := &domain.RefreshToken{ID: uuid.New(), AccountID: accountID, TokenHash: "h2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.Rotate(ctx, accountID, old.ID, next, now))
	assert.ErrorIs(t, s.Rotate(ctx, accountID, old.ID, next, now), domain.ErrTokenRevoked)
	assert.ErrorIs(t, s.Revoke(ctx, uuid.New(), next.ID, now), domain.ErrTokenNotFound)

	active, err := s.ListActive(ctx, accountID, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, next.ID, active[0].ID)

	require.NoError(t, s.RevokeAll(ctx, accountID, now))
	active, err = s.ListActive(ctx, accountID, now)
	require.NoError(t, err)
	assert.Empty(t, active)

	n, err := s.DeleteStale(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStore_List(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()
	seed(t, s, "Ada Lovelace", "ada@example.com", domain.RoleAdmin, base)
	seed(t, s, "Grace Hopper", "grace@example.com", domain.RoleUser, base.Add(time.Minute))
	seed(t, s, "Alan Turing", "alan@example.com", domain.RoleUser, base.Add(2*time.Minute))

	all, err := s.List(ctx, domain.AccountQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alan Turing", all[0].Name, "newest first")

	page2, err := s.List(ctx, domain.AccountQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "Ada Lovelace", page2[0].Name)

	admins, err := s.List(ctx, domain.AccountQuery{Page: 1, Limit: 10, Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, admins, 1)

	found, err := s.List(ctx, domain.AccountQuery{Page: 1, Limit: 10, Search: "GRACE"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "grace@example.com", found[0].Email)

	empty, err := s.List(ctx, domain.AccountQuery{Page: 5, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	far, err := s.List(ctx, domain.AccountQuery{Page: 100000000000000000, Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestStore_ProfileStatusStats(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	ada := seed(t, s, "Ada", "ada@example.com", domain.RoleAdmin, now)
	grace := seed(t, s, "Grace", "grace@example.com", domain.RoleUser, now)

	taken := "ada@example.com"
	_, err := s.UpdateProfile(ctx, grace.ID, domain.ProfileUpdate{Email: &taken}, now)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	email := "hopper@example.com"
	updated, err := s.UpdateProfile(ctx, grace.ID, domain.ProfileUpdate{
		Email:    &email,
		Location: &domain.Location{City: "Arlington", Country: "US"},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "hopper@example.com", updated.Email)
	require.NotNil(t, updated.Location)

	updated, err = s.UpdateProfile(ctx, grace.ID, domain.ProfileUpdate{Location: &domain.Location{}}, now)
	require.NoError(t, err)
	assert.Nil(t, updated.Location, "an empty location clears it")

	_, err = s.FindByEmail(ctx, "grace@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = s.UpdateStatus(ctx, ada.ID, domain.StatusSuspended, now)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStats{TotalUsers: 2, ActiveUsers: 1, AdminUsers: 1, InactiveUsers: 1}, *stats)
}

func TestStore_FollowsAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	ada := seed(t, s, "Ada", "ada@example.com", domain.RoleUser, now)
	grace := seed(t, s, "Grace", "grace@example.com", domain.RoleUser, now)
	alan := seed(t, s, "Alan", "alan@example.com", domain.RoleUser, now)

	require.NoError(t, s.Follow(ctx, domain.Follow{FollowerID: grace.ID, FolloweeID: ada.ID, CreatedAt: now}))
	require.NoError(t, s.Follow(ctx, domain.Follow{FollowerID: alan.ID, FolloweeID: ada.ID, CreatedAt: now.Add(time.Second)}))
	assert.ErrorIs(t, s.Follow(ctx, domain.Follow{FollowerID: grace.ID, FolloweeID: ada.ID, CreatedAt: now}), domain.ErrAlreadyFollowing)

	followers, err := s.Followers(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, alan.ID, followers[0].ID, "most recent edge first")

	following, err := s.Following(ctx, grace.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, ada.ID, following[0].ID)

	require.NoError(t, s.Unfollow(ctx, grace.ID, ada.ID))
	require.NoError(t, s.Unfollow(ctx, grace.ID, ada.ID), "unfollow is idempotent")

	require.NoError(t, s.Delete(ctx, ada.ID))
	following, err = s.Following(ctx, alan.ID)
	require.NoError(t, err)
	assert.Empty(t, following, "delete cascades follow edges")
	assert.ErrorIs(t, s.Delete(ctx, ada.ID), domain.ErrAccountNotFound)
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

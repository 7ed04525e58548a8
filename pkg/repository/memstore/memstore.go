// Package memstore is an in-process implementation of the account,
// refresh token and directory stores. It backs tests and single-node
// development setups.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

type followKey struct {
	follower uuid.UUID
	followee uuid.UUID
}

// Store holds all state behind one mutex. Records are copied in and out so
// callers never share memory with the store.
type Store struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]*domain.Account
	byEmail     map[string]uuid.UUID
	credentials map[uuid.UUID]*domain.Credential
	tokens      map[uuid.UUID]*domain.RefreshToken
	follows     map[followKey]time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:    make(map[uuid.UUID]*domain.Account),
		byEmail:     make(map[string]uuid.UUID),
		credentials: make(map[uuid.UUID]*domain.Credential),
		tokens:      make(map[uuid.UUID]*domain.RefreshToken),
		follows:     make(map[followKey]time.Time),
	}
}

// FindByEmail finds an account by its normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

// FindByID finds an account by ID.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

// GetCredential returns the account's password credential.
func (s *Store) GetCredential(ctx context.Context, accountID uuid.UUID) (*domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *c
	return &cp, nil
}

// Create inserts an account and its credential.
func (s *Store) Create(ctx context.Context, account *domain.Account, cred *domain.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, exists := s.byEmail[email]; exists {
		return domain.ErrAccountAlreadyExists
	}
	a := copyAccount(account)
	a.Email = email
	s.accounts[a.ID] = a
	s.byEmail[email] = a.ID
	c := *cred
	s.credentials[a.ID] = &c
	return nil
}

// UpdateLockout writes state iff the stored version equals expectedVersion.
func (s *Store) UpdateLockout(ctx context.Context, id uuid.UUID, expectedVersion int64, state domain.LockoutState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.LockoutVersion != expectedVersion {
		return domain.ErrVersionConflict
	}
	a.Lockout = copyLockout(state)
	a.LockoutVersion++
	return nil
}

// UpdatePassword replaces the credential and clears the lockout state.
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	s.credentials[id] = &domain.Credential{AccountID: id, PasswordHash: passwordHash, UpdatedAt: at}
	a.Lockout = domain.LockoutState{}
	a.LockoutVersion++
	a.UpdatedAt = at
	return nil
}

// UpdateLastActive records the last activity time.
func (s *Store) UpdateLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.LastActiveAt = at
	return nil
}

// ListActive returns the account's unrevoked, unexpired refresh records.
func (s *Store) ListActive(ctx context.Context, accountID uuid.UUID, now time.Time) ([]*domain.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.RefreshToken
	for _, t := range s.tokens {
		if t.AccountID == accountID && t.IsActive(now) {
			out = append(out, copyToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Insert stores a refresh record.
func (s *Store) Insert(ctx context.Context, token *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.ID] = copyToken(token)
	return nil
}

// Rotate revokes revokeID and inserts next in one critical section.
func (s *Store) Rotate(ctx context.Context, accountID, revokeID uuid.UUID, next *domain.RefreshToken, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.revokeLocked(accountID, revokeID, now); err != nil {
		return err
	}
	s.tokens[next.ID] = copyToken(next)
	return nil
}

// Revoke revokes a single refresh record.
func (s *Store) Revoke(ctx context.Context, accountID, id uuid.UUID, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeLocked(accountID, id, now)
}

func (s *Store) revokeLocked(accountID, id uuid.UUID, now time.Time) error {
	t, ok := s.tokens[id]
	if !ok || t.AccountID != accountID {
		return domain.ErrTokenNotFound
	}
	if t.Revoked {
		return domain.ErrTokenRevoked
	}
	t.Revoked = true
	revokedAt := now
	t.RevokedAt = &revokedAt
	return nil
}

// RevokeAll revokes every unrevoked refresh record of the account.
func (s *Store) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.AccountID == accountID && !t.Revoked {
			t.Revoked = true
			revokedAt := now
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

// DeleteStale removes records expired or revoked before cutoff.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(cutoff) || (t.RevokedAt != nil && t.RevokedAt.Before(cutoff)) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

// List returns a page of accounts matching q, newest first.
func (s *Store) List(ctx context.Context, q domain.AccountQuery) ([]*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(q.Search)
	var matched []*domain.Account
	for _, a := range s.accounts {
		if q.Role != "" && a.Role != q.Role {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Name), search) && !strings.Contains(a.Email, search) {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := q.Offset()
	if start >= len(matched) {
		return []*domain.Account{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	out := make([]*domain.Account, 0, end-start)
	for _, a := range matched[start:end] {
		out = append(out, copyAccount(a))
	}
	return out, nil
}

// Stats counts accounts by status and role.
func (s *Store) Stats(ctx context.Context) (*domain.AccountStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.AccountStats{TotalUsers: len(s.accounts)}
	for _, a := range s.accounts {
		if a.Status == domain.StatusActive {
			stats.ActiveUsers++
		}
		if a.Role == domain.RoleAdmin {
			stats.AdminUsers++
		}
	}
	stats.InactiveUsers = stats.TotalUsers - stats.ActiveUsers
	return stats, nil
}

// UpdateProfile applies the non-nil fields of update.
func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, update domain.ProfileUpdate, at time.Time) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if update.Email != nil {
		email := strings.ToLower(*update.Email)
		if owner, taken := s.byEmail[email]; taken && owner != id {
			return nil, domain.ErrAccountAlreadyExists
		}
		delete(s.byEmail, a.Email)
		s.byEmail[email] = id
		a.Email = email
	}
	if update.Name != nil {
		a.Name = *update.Name
	}
	if update.Location != nil {
		if update.Location.City == "" && update.Location.Country == "" {
			a.Location = nil
		} else {
			loc := *update.Location
			a.Location = &loc
		}
	}
	if update.Role != nil {
		a.Role = *update.Role
	}
	a.UpdatedAt = at
	return copyAccount(a), nil
}

// UpdateStatus sets the account status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	return copyAccount(a), nil
}

// Delete removes the account with its credential, tokens and follow edges.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	delete(s.byEmail, a.Email)
	delete(s.accounts, id)
	delete(s.credentials, id)
	for tid, t := range s.tokens {
		if t.AccountID == id {
			delete(s.tokens, tid)
		}
	}
	for k := range s.follows {
		if k.follower == id || k.followee == id {
			delete(s.follows, k)
		}
	}
	return nil
}

// Follow adds a follow edge.
func (s *Store) Follow(ctx context.Context, follow domain.Follow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := followKey{follower: follow.FollowerID, followee: follow.FolloweeID}
	if _, exists := s.follows[k]; exists {
		return domain.ErrAlreadyFollowing
	}
	s.follows[k] = follow.CreatedAt
	return nil
}

// Unfollow removes a follow edge. Missing edges are ignored.
func (s *Store) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.follows, followKey{follower: followerID, followee: followeeID})
	return nil
}

// Followers returns the accounts following id, most recent edge first.
func (s *Store) Followers(ctx context.Context, id uuid.UUID) ([]*domain.Account, error) {
	return s.edges(ctx, func(k followKey) (uuid.UUID, bool) { return k.follower, k.followee == id })
}

// Following returns the accounts id follows, most recent edge first.
func (s *Store) Following(ctx context.Context, id uuid.UUID) ([]*domain.Account, error) {
	return s.edges(ctx, func(k followKey) (uuid.UUID, bool) { return k.followee, k.follower == id })
}

func (s *Store) edges(ctx context.Context, pick func(followKey) (uuid.UUID, bool)) ([]*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	type edge struct {
		account *domain.Account
		at      time.Time
	}
	var edges []edge
	for k, at := range s.follows {
		other, ok := pick(k)
		if !ok {
			continue
		}
		if a, exists := s.accounts[other]; exists {
			edges = append(edges, edge{account: a, at: at})
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].at.After(edges[j].at) })

	out := make([]*domain.Account, 0, len(edges))
	for _, e := range edges {
		out = append(out, copyAccount(e.account))
	}
	return out, nil
}

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	if a.Location != nil {
		loc := *a.Location
		cp.Location = &loc
	}
	cp.Lockout = copyLockout(a.Lockout)
	return &cp
}

func copyLockout(s domain.LockoutState) domain.LockoutState {
	if s.LockedUntil != nil {
		until := *s.LockedUntil
		s.LockedUntil = &until
	}
	return s
}

func copyToken(t *domain.RefreshToken) *domain.RefreshToken {
	cp := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}

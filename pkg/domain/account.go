package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role attached to an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Status gates authentication: only active accounts may sign in or refresh.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Location is the optional city/country pair on a profile.
type Location struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// Account represents a user account. Credentials are stored separately
// (see Credential) and never travel with the account record.
type Account struct {
	ID       uuid.UUID
	Name     string
	Email    string
	Role     Role
	Status   Status
	Location *Location

	// Lockout is the brute-force counter state. LockoutVersion is bumped by
	// the store on every lockout or password write and is the compare-and-swap
	// token for UpdateLockout.
	Lockout        LockoutState
	LockoutVersion int64

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt time.Time
}

// IsActive reports whether the account may authenticate.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// Profile is the outward view of an account.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	Location     *Location `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// PublicProfile returns the account without lockout or credential state.
func (a *Account) PublicProfile() Profile {
	return Profile{
		ID:           a.ID.String(),
		Name:         a.Name,
		Email:        a.Email,
		Role:         a.Role,
		Status:       a.Status,
		Location:     a.Location,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		LastActiveAt: a.LastActiveAt,
	}
}

// ProfileUpdate holds optional changes to an account. Nil fields are left
// unchanged; a Location with both fields empty clears it.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Location *Location
	Role     *Role
}

// Credential stores the password hash separately from the account profile.
type Credential struct {
	AccountID    uuid.UUID
	PasswordHash string
	UpdatedAt    time.Time
}

// LockoutState is the failed-attempt counter and temporary lock for an account.
type LockoutState struct {
	Attempts    int
	LockedUntil *time.Time
}

// IsLocked returns true if the lock is still in force at now.
func (s LockoutState) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// IsClear returns true when there is nothing to reset.
func (s LockoutState) IsClear() bool {
	return s.Attempts == 0 && s.LockedUntil == nil
}

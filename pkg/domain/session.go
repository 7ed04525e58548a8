package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the stored record of an issued refresh token. Only the
// one-way hash of the raw token is kept.
type RefreshToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time

	// Client metadata captured at issuance.
	IP        string
	UserAgent string
}

// IsActive checks if the record can still be redeemed (not expired and not revoked).
func (t *RefreshToken) IsActive(now time.Time) bool {
	if t.Revoked {
		return false
	}
	return now.Before(t.ExpiresAt)
}

// TokenPair represents the access and refresh token pair.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

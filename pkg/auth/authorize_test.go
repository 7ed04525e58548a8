package auth

import (
	"errors"
	"testing"

	"github.com/tendant/simple-accounts/pkg/domain"
)

func TestAuthorize(t *testing.T) {
	user := &AccessTokenClaims{Role: domain.RoleUser}
	admin := &AccessTokenClaims{Role: domain.RoleAdmin}

	tests := []struct {
		name     string
		claims   *AccessTokenClaims
		required []domain.Role
		want     error
	}{
		{"no requirement", user, nil, nil},
		{"user on admin route", user, []domain.Role{domain.RoleAdmin}, domain.ErrForbidden},
		{"admin on admin route", admin, []domain.Role{domain.RoleAdmin}, nil},
		{"user among several", user, []domain.Role{domain.RoleAdmin, domain.RoleUser}, nil},
		{"no claims", nil, []domain.Role{domain.RoleUser}, domain.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Authorize(tt.claims, tt.required...); !errors.Is(err, tt.want) {
				t.Errorf("Authorize() = %v, want %v", err, tt.want)
			}
		})
	}
}

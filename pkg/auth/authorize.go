package auth

import (
	"github.com/tendant/simple-accounts/pkg/domain"
)

// Authorize allows claims when required is empty or contains the caller's
// role. It returns domain.ErrForbidden otherwise, and
// domain.ErrUnauthenticated for nil claims.
func Authorize(claims *AccessTokenClaims, required ...domain.Role) error {
	if claims == nil {
		return domain.ErrUnauthenticated
	}
	if len(required) == 0 {
		return nil
	}
	for _, role := range required {
		if claims.Role == role {
			return nil
		}
	}
	return domain.ErrForbidden
}

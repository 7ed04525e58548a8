package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/tendant/simple-accounts/pkg/domain"
)

// GenerateToken returns n random bytes encoded as unpadded base64url.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: read random: %v", domain.ErrCrypto, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

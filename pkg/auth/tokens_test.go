package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
	"github.com/tendant/simple-accounts/pkg/repository/memstore"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!!")

func newTestTokenService(secret []byte) *TokenService {
	store := memstore.New()
	return NewTokenService(TokenConfig{JWTSecret: secret, Issuer: "simple-accounts-test"}, store, store, newTestCredentialManager())
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:     uuid.New(),
		Email:  "alice@example.com",
		Role:   domain.RoleAdmin,
		Status: domain.StatusActive,
	}
}

func TestTokenService_IssueVerify(t *testing.T) {
	s := newTestTokenService(testSecret)
	account := testAccount()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	token, expiresAt, err := s.IssueAccessToken(account, now)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if !expiresAt.Equal(now.Add(DefaultAccessTokenTTL)) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, now.Add(DefaultAccessTokenTTL))
	}

	claims, err := s.VerifyAccessToken(token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyAccessToken() error = %v", err)
	}
	if claims.Subject != account.ID.String() || claims.Email != account.Email || claims.Role != domain.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("claims carry no jti")
	}
}

func TestTokenService_VerifyExpiry(t *testing.T) {
	s := newTestTokenService(testSecret)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	token, expiresAt, err := s.IssueAccessToken(testAccount(), now)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.VerifyAccessToken(token, expiresAt); err != nil {
		t.Errorf("VerifyAccessToken(at exp) error = %v, want nil", err)
	}
	if _, err := s.VerifyAccessToken(token, expiresAt.Add(time.Second)); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("VerifyAccessToken(after exp) error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenService_VerifyRejectsTampering(t *testing.T) {
	s := newTestTokenService(testSecret)
	now := time.Now()
	token, _, err := s.IssueAccessToken(testAccount(), now)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(token, ".")

	// Re-sign a user token as admin with a foreign key.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "simple-accounts-test",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	})
	forgedToken, err := forged.SignedString([]byte("another-secret-another-secret-!!!!"))
	if err != nil {
		t.Fatal(err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{Role: domain.RoleAdmin})
	noneToken, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"payload swapped", parts[0] + "." + strings.Repeat("A", len(parts[1])) + "." + parts[2]},
		{"signature stripped", parts[0] + "." + parts[1] + "."},
		{"foreign key", forgedToken},
		{"alg none", noneToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Even long after expiry, a bad signature is reported as invalid.
			_, err := s.VerifyAccessToken(tt.token, now.Add(24*time.Hour))
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Errorf("VerifyAccessToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenService_VerifyWrongIssuer(t *testing.T) {
	issuer := newTestTokenService(testSecret)
	issuer.config.Issuer = "someone-else"
	token, _, err := issuer.IssueAccessToken(testAccount(), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	s := newTestTokenService(testSecret)
	if _, err := s.VerifyAccessToken(token, time.Now()); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_NoSigningKey(t *testing.T) {
	s := newTestTokenService(nil)

	if _, _, err := s.IssueAccessToken(testAccount(), time.Now()); !errors.Is(err, domain.ErrSigning) {
		t.Errorf("IssueAccessToken() error = %v, want ErrSigning", err)
	}
	if _, err := s.VerifyAccessToken("a.b.c", time.Now()); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_IssueRefreshToken(t *testing.T) {
	s := newTestTokenService(testSecret)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := s.IssueRefreshToken()
		if err != nil {
			t.Fatal(err)
		}
		// 32 bytes, unpadded base64url.
		if len(tok) != 43 || strings.ContainsAny(tok, "+/=") {
			t.Fatalf("IssueRefreshToken() = %q", tok)
		}
		if seen[tok] {
			t.Fatal("IssueRefreshToken() repeated a token")
		}
		seen[tok] = true
	}
}

func TestTokenService_RotateRejectsOversizedToken(t *testing.T) {
	s := newTestTokenService(testSecret)

	_, err := s.RotateRefreshToken(t.Context(), uuid.New(), strings.Repeat("a", maxRefreshTokenLen+1), IssueOpts{}, time.Now())
	if !errors.Is(err, domain.ErrRefreshDenied) {
		t.Errorf("RotateRefreshToken() error = %v, want ErrRefreshDenied", err)
	}
}

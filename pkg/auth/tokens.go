package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

const (
	// 256 bits of entropy
	refreshTokenLen = 32
	// Upper bound on a presented refresh token, checked before hashing.
	maxRefreshTokenLen = 128

	// Default token lifetimes
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	DefaultMaxSessionsPerAccount = 10
)

// TokenConfig holds token issuance configuration.
type TokenConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	JWTSecret       []byte
	Issuer          string
	// MaxSessionsPerAccount caps active refresh records per account; the
	// oldest are revoked when a new session would exceed it.
	MaxSessionsPerAccount int
	// StoreTimeout bounds each store call; zero disables the bound.
	StoreTimeout time.Duration
}

// AccessTokenClaims represents the claims in an access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// AccountID parses the subject claim.
func (c *AccessTokenClaims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// IssueOpts carries client metadata recorded with a refresh token.
type IssueOpts struct {
	IP        string
	UserAgent string
}

// TokenService issues and verifies signed access tokens and manages the
// rotating, hashed refresh token records.
type TokenService struct {
	config   TokenConfig
	tokens   RefreshTokenStore
	accounts AccountStore
	hasher   Hasher
	now      func() time.Time
}

// NewTokenService creates a new token service. hasher is used for refresh
// tokens; pass the CredentialManager.
func NewTokenService(config TokenConfig, tokens RefreshTokenStore, accounts AccountStore, hasher Hasher) *TokenService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.MaxSessionsPerAccount == 0 {
		config.MaxSessionsPerAccount = DefaultMaxSessionsPerAccount
	}
	return &TokenService{
		config:   config,
		tokens:   WithRefreshTokenTimeout(tokens, config.StoreTimeout),
		accounts: WithAccountTimeout(accounts, config.StoreTimeout),
		hasher:   hasher,
		now:      time.Now,
	}
}

// AccessTokenTTL returns the access token TTL.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// RefreshTokenTTL returns the refresh token TTL.
func (s *TokenService) RefreshTokenTTL() time.Duration {
	return s.config.RefreshTokenTTL
}

// IssueAccessToken signs a JWT for account, valid from now for AccessTokenTTL.
func (s *TokenService) IssueAccessToken(account *domain.Account, now time.Time) (string, time.Time, error) {
	if len(s.config.JWTSecret) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: signing key not configured", domain.ErrSigning)
	}

	expiresAt := now.Add(s.config.AccessTokenTTL)
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.config.Issuer,
			ID:        uuid.NewString(),
		},
		Email: account.Email,
		Role:  account.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken checks the signature first and only then the expiry.
// Tampered or foreign tokens yield ErrInvalidToken; a well-signed token
// past its expiry yields ErrTokenExpired.
func (s *TokenService) VerifyAccessToken(tokenString string, now time.Time) (*AccessTokenClaims, error) {
	if len(s.config.JWTSecret) == 0 {
		return nil, domain.ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &AccessTokenClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.config.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	if claims.ExpiresAt == nil {
		return nil, domain.ErrInvalidToken
	}
	if s.config.Issuer != "" && claims.Issuer != s.config.Issuer {
		return nil, domain.ErrInvalidToken
	}
	if _, err := claims.AccountID(); err != nil || !claims.Role.Valid() {
		return nil, domain.ErrInvalidToken
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, domain.ErrTokenExpired
	}
	return claims, nil
}

// ValidateAccessToken verifies against the service clock.
func (s *TokenService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	return s.VerifyAccessToken(tokenString, s.now())
}

// IssueRefreshToken returns a fresh opaque refresh token. The caller keeps
// only its hash.
func (s *TokenService) IssueRefreshToken() (string, error) {
	return GenerateToken(refreshTokenLen)
}

// IssueSession issues an access token and a new refresh token for account,
// storing only the refresh token's hash. The raw refresh token is returned
// exactly once, in the pair.
func (s *TokenService) IssueSession(ctx context.Context, account *domain.Account, opts IssueOpts, now time.Time) (*domain.TokenPair, error) {
	raw, record, err := s.newRefreshRecord(account.ID, opts, now)
	if err != nil {
		return nil, err
	}

	if err := s.enforceSessionCap(ctx, account.ID, now); err != nil {
		return nil, err
	}
	if err := s.tokens.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}

	return s.tokenPair(account, raw, now)
}

// RotateRefreshToken redeems presented for accountID: the matching record
// is revoked and a new refresh token plus access token are issued. A token
// can be redeemed at most once.
func (s *TokenService) RotateRefreshToken(ctx context.Context, accountID uuid.UUID, presented string, opts IssueOpts, now time.Time) (*domain.TokenPair, error) {
	if presented == "" || len(presented) > maxRefreshTokenLen {
		return nil, domain.ErrRefreshDenied
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrRefreshDenied
		}
		return nil, err
	}
	if !account.IsActive() {
		return nil, domain.ErrRefreshDenied
	}

	matched, err := s.match(ctx, accountID, presented, now)
	if err != nil {
		return nil, err
	}
	if matched == nil {
		return nil, domain.ErrRefreshDenied
	}

	raw, next, err := s.newRefreshRecord(accountID, opts, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, accountID, matched.ID, next, now); err != nil {
		if errors.Is(err, domain.ErrTokenRevoked) || errors.Is(err, domain.ErrTokenNotFound) {
			// Lost a race with a concurrent redemption of the same token.
			return nil, domain.ErrRefreshDenied
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return s.tokenPair(account, raw, now)
}

// Revoke revokes the single session identified by presented. Unknown
// tokens are ignored.
func (s *TokenService) Revoke(ctx context.Context, accountID uuid.UUID, presented string, now time.Time) error {
	if presented == "" || len(presented) > maxRefreshTokenLen {
		return nil
	}
	matched, err := s.match(ctx, accountID, presented, now)
	if err != nil || matched == nil {
		return err
	}
	err = s.tokens.Revoke(ctx, accountID, matched.ID, now)
	if errors.Is(err, domain.ErrTokenRevoked) || errors.Is(err, domain.ErrTokenNotFound) {
		return nil
	}
	return err
}

// RevokeAll revokes every refresh record of the account.
func (s *TokenService) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	return s.tokens.RevokeAll(ctx, accountID, now)
}

// Sweep deletes expired records and records revoked longer than retention ago.
func (s *TokenService) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return s.tokens.DeleteStale(ctx, s.now().Add(-retention))
}

func (s *TokenService) match(ctx context.Context, accountID uuid.UUID, presented string, now time.Time) (*domain.RefreshToken, error) {
	records, err := s.tokens.ListActive(ctx, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	for _, rec := range records {
		ok, err := s.hasher.Verify(presented, rec.TokenHash)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *TokenService) newRefreshRecord(accountID uuid.UUID, opts IssueOpts, now time.Time) (string, *domain.RefreshToken, error) {
	raw, err := s.IssueRefreshToken()
	if err != nil {
		return "", nil, err
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", nil, err
	}
	return raw, &domain.RefreshToken{
		ID:        uuid.New(),
		AccountID: accountID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
		IP:        opts.IP,
		UserAgent: opts.UserAgent,
	}, nil
}

// enforceSessionCap revokes the oldest active records so that, after one
// more insert, the account holds at most MaxSessionsPerAccount.
func (s *TokenService) enforceSessionCap(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	records, err := s.tokens.ListActive(ctx, accountID, now)
	if err != nil {
		return fmt.Errorf("list refresh tokens: %w", err)
	}
	excess := len(records) - s.config.MaxSessionsPerAccount + 1
	if excess <= 0 {
		return nil
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	for _, rec := range records[:excess] {
		err := s.tokens.Revoke(ctx, accountID, rec.ID, now)
		if err != nil && !errors.Is(err, domain.ErrTokenRevoked) && !errors.Is(err, domain.ErrTokenNotFound) {
			return fmt.Errorf("revoke oldest session: %w", err)
		}
	}
	return nil
}

func (s *TokenService) tokenPair(account *domain.Account, refresh string, now time.Time) (*domain.TokenPair, error) {
	access, expiresAt, err := s.IssueAccessToken(account, now)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

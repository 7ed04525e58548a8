package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/domain"
)

const (
	DefaultStoreTimeout      = 5 * time.Second
	DefaultMaxLockoutRetries = 5
)

// Observer receives authentication outcomes, e.g. for metrics.
type Observer interface {
	LoginSucceeded()
	LoginFailed(reason string)
	AccountLocked()
	RefreshRotated()
	RefreshDenied()
}

type nopObserver struct{}

func (nopObserver) LoginSucceeded() {}
func (nopObserver) LoginFailed(string) {}
func (nopObserver) AccountLocked() {}
func (nopObserver) RefreshRotated() {}
func (nopObserver) RefreshDenied() {}

// EngineConfig wires an Engine. Accounts, Tokens and Credentials are required.
type EngineConfig struct {
	Accounts    AccountStore
	Tokens      *TokenService
	Credentials *CredentialManager

	Lockout               LockoutPolicy
	PasswordPolicy        *PasswordPolicy
	StrictEmailValidation bool
	BlockDisposableEmail  bool

	// StoreTimeout bounds each account store call; a call past it fails
	// with domain.ErrStoreTimeout.
	StoreTimeout time.Duration
	// MaxLockoutRetries bounds compare-and-swap retries on lockout writes.
	MaxLockoutRetries int

	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

// Engine orchestrates registration, login, password change and session
// renewal over the credential manager, lockout policy and token service.
type Engine struct {
	accounts    AccountStore
	tokens      *TokenService
	credentials *CredentialManager
	lockout     LockoutPolicy
	policy      *PasswordPolicy
	strictEmail bool
	blockDisp   bool
	maxRetries  int
	logger      *slog.Logger
	observer    Observer
	now         func() time.Time

	// dummyHash is verified against when the email is unknown so that
	// unknown and known accounts take comparable time.
	dummyHash string
}

// NewEngine creates a new engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Accounts == nil || cfg.Tokens == nil || cfg.Credentials == nil {
		return nil, errors.New("auth: Accounts, Tokens and Credentials are required")
	}
	if cfg.Lockout.MaxAttempts == 0 && cfg.Lockout.Duration == 0 {
		cfg.Lockout = DefaultLockoutPolicy()
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.MaxLockoutRetries <= 0 {
		cfg.MaxLockoutRetries = DefaultMaxLockoutRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dummy, err := cfg.Credentials.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	cfg.Tokens.now = cfg.Now

	return &Engine{
		accounts:    WithAccountTimeout(cfg.Accounts, cfg.StoreTimeout),
		tokens:      cfg.Tokens,
		credentials: cfg.Credentials,
		lockout:     cfg.Lockout,
		policy:      cfg.PasswordPolicy,
		strictEmail: cfg.StrictEmailValidation,
		blockDisp:   cfg.BlockDisposableEmail,
		maxRetries:  cfg.MaxLockoutRetries,
		logger:      cfg.Logger,
		observer:    cfg.Observer,
		now:         cfg.Now,
		dummyHash:   dummy,
	}, nil
}

// Tokens returns the token service.
func (e *Engine) Tokens() *TokenService {
	return e.tokens
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Location *domain.Location
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Tokens  *domain.TokenPair
	Profile domain.Profile
}

// Register creates an active account with role user.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	return e.CreateAccount(ctx, in, domain.RoleUser)
}

// CreateAccount creates an active account with the given role. The
// password is hashed here, before anything reaches the store.
func (e *Engine) CreateAccount(ctx context.Context, in RegisterInput, role domain.Role) (*domain.Account, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if err := ValidateEmail(in.Email, e.strictEmail, e.blockDisp); err != nil {
		return nil, err
	}
	email := NormalizeEmail(in.Email)

	name, err := ValidateName(in.Name)
	if err != nil {
		return nil, err
	}

	if e.policy != nil {
		if err := e.policy.ValidatePassword(in.Password); err != nil {
			return nil, err
		}
	}

	// Check if account already exists by email
	_, err = e.accounts.FindByEmail(ctx, email)
	if err == nil {
		return nil, domain.ErrAccountAlreadyExists
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := e.credentials.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	account := &domain.Account{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Role:         role,
		Status:       domain.StatusActive,
		Location:     SanitizeLocation(in.Location),
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
	cred := &domain.Credential{
		AccountID:    account.ID,
		PasswordHash: hash,
		UpdatedAt:    now,
	}

	if err := e.accounts.Create(ctx, account, cred); err != nil {
		return nil, err
	}

	e.logger.Info("account registered", "account_id", account.ID, "role", role)
	return account, nil
}

// Login authenticates email and password and issues a session.
//
// Unknown email and wrong password both return ErrInvalidCredentials. A
// locked account returns a *domain.LockedError (ErrAccountLocked) before
// the password is looked at; a non-active account returns ErrAccountInactive.
func (e *Engine) Login(ctx context.Context, email, password string, opts IssueOpts) (*LoginResult, error) {
	now := e.now()
	email = NormalizeEmail(email)

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			_, _ = e.credentials.Verify(password, e.dummyHash)
			e.loginFailed("unknown_email", uuid.Nil, opts)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if d := e.lockout.Check(account.Lockout, now); !d.Allowed {
		e.loginFailed("account_locked", account.ID, opts)
		return nil, &domain.LockedError{Until: *account.Lockout.LockedUntil, Remaining: d.RetryAfter}
	}

	if !account.IsActive() {
		e.loginFailed("account_"+string(account.Status), account.ID, opts)
		return nil, domain.ErrAccountInactive
	}

	cred, err := e.accounts.GetCredential(ctx, account.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			e.loginFailed("missing_credential", account.ID, opts)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := e.credentials.Verify(password, cred.PasswordHash)
	if err != nil {
		e.logger.Error("credential verification failed", "account_id", account.ID, "error", err)
		return nil, err
	}
	if !ok {
		state, err := e.recordFailure(ctx, account, now)
		if err != nil {
			return nil, err
		}
		e.loginFailed("wrong_password", account.ID, opts)
		if state.IsLocked(now) {
			e.observer.AccountLocked()
			e.logger.Warn("account locked", "account_id", account.ID, "attempts", state.Attempts, "locked_until", state.LockedUntil)
		}
		return nil, domain.ErrInvalidCredentials
	}

	if err := e.recordSuccess(ctx, account); err != nil {
		return nil, err
	}
	e.rehashIfNeeded(ctx, account.ID, password, cred.PasswordHash, now)

	if err := e.accounts.UpdateLastActive(ctx, account.ID, now); err != nil {
		e.logger.Warn("failed to update last active", "account_id", account.ID, "error", err)
	}
	account.LastActiveAt = now
	account.Lockout = domain.LockoutState{}

	tokens, err := e.tokens.IssueSession(ctx, account, opts, now)
	if err != nil {
		return nil, err
	}

	e.observer.LoginSucceeded()
	e.logger.Info("login succeeded", "account_id", account.ID, "ip", opts.IP)
	return &LoginResult{Tokens: tokens, Profile: account.PublicProfile()}, nil
}

// ChangePassword replaces the password after verifying the current one,
// clears lockout state and revokes every refresh token of the account.
func (e *Engine) ChangePassword(ctx context.Context, accountID uuid.UUID, currentPassword, newPassword string) error {
	cred, err := e.accounts.GetCredential(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := e.credentials.Verify(currentPassword, cred.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Info("password change rejected", "account_id", accountID, "reason", "wrong_current_password")
		return domain.ErrIncorrectPassword
	}

	if e.policy != nil {
		if err := e.policy.ValidatePassword(newPassword); err != nil {
			return err
		}
	}

	hash, err := e.credentials.Hash(newPassword)
	if err != nil {
		return err
	}

	// Revoke first; a failure here leaves the password unchanged.
	now := e.now()
	if err := e.tokens.RevokeAll(ctx, accountID, now); err != nil {
		return fmt.Errorf("revoke sessions before password change: %w", err)
	}
	if err := e.accounts.UpdatePassword(ctx, accountID, hash, now); err != nil {
		return err
	}
	// Sessions opened with the old password in between.
	if err := e.tokens.RevokeAll(ctx, accountID, e.now()); err != nil {
		e.logger.Error("revoke sessions after password change", "account_id", accountID, "error", err)
	}

	e.logger.Info("password changed", "account_id", accountID)
	return nil
}

// Refresh rotates the presented refresh token.
func (e *Engine) Refresh(ctx context.Context, accountID uuid.UUID, refreshToken string, opts IssueOpts) (*domain.TokenPair, error) {
	tokens, err := e.tokens.RotateRefreshToken(ctx, accountID, refreshToken, opts, e.now())
	if err != nil {
		if errors.Is(err, domain.ErrRefreshDenied) {
			e.observer.RefreshDenied()
			e.logger.Info("refresh denied", "account_id", accountID, "ip", opts.IP)
		}
		return nil, err
	}
	e.observer.RefreshRotated()
	return tokens, nil
}

// Logout revokes the session of the presented refresh token.
func (e *Engine) Logout(ctx context.Context, accountID uuid.UUID, refreshToken string) error {
	return e.tokens.Revoke(ctx, accountID, refreshToken, e.now())
}

// RevokeSessions revokes every session of the account.
func (e *Engine) RevokeSessions(ctx context.Context, accountID uuid.UUID) error {
	return e.tokens.RevokeAll(ctx, accountID, e.now())
}

// Account returns the account by ID.
func (e *Engine) Account(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return e.accounts.FindByID(ctx, accountID)
}

// recordFailure applies OnFailure with a compare-and-swap on the lockout
// version, re-reading the account after each conflict.
func (e *Engine) recordFailure(ctx context.Context, account *domain.Account, now time.Time) (domain.LockoutState, error) {
	current := account
	for i := 0; i < e.maxRetries; i++ {
		if !e.lockout.Check(current.Lockout, now).Allowed {
			// A concurrent failure already locked the account.
			return current.Lockout, nil
		}

		next := e.lockout.OnFailure(current.Lockout, now)
		err := e.accounts.UpdateLockout(ctx, current.ID, current.LockoutVersion, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.LockoutState{}, err
		}

		current, err = e.accounts.FindByID(ctx, account.ID)
		if err != nil {
			return domain.LockoutState{}, err
		}
	}

	e.logger.Warn("lockout update contended", "account_id", account.ID, "retries", e.maxRetries)
	return domain.LockoutState{}, domain.ErrLockoutContention
}

func (e *Engine) recordSuccess(ctx context.Context, account *domain.Account) error {
	current := account
	for i := 0; i < e.maxRetries; i++ {
		if current.Lockout.IsClear() {
			return nil
		}

		err := e.accounts.UpdateLockout(ctx, current.ID, current.LockoutVersion, e.lockout.OnSuccess(current.Lockout))
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}

		current, err = e.accounts.FindByID(ctx, account.ID)
		if err != nil {
			return err
		}
	}

	e.logger.Warn("lockout reset contended", "account_id", account.ID, "retries", e.maxRetries)
	return domain.ErrLockoutContention
}

// rehashIfNeeded upgrades a digest made with outdated parameters. Failures
// are logged only; the login itself already succeeded.
func (e *Engine) rehashIfNeeded(ctx context.Context, accountID uuid.UUID, password, digest string, now time.Time) {
	if !e.credentials.NeedsRehash(digest) {
		return
	}
	hash, err := e.credentials.Hash(password)
	if err == nil {
		err = e.accounts.UpdatePassword(ctx, accountID, hash, now)
	}
	if err != nil {
		e.logger.Warn("password rehash failed", "account_id", accountID, "error", err)
		return
	}
	e.logger.Info("password rehashed", "account_id", accountID)
}

func (e *Engine) loginFailed(reason string, accountID uuid.UUID, opts IssueOpts) {
	e.observer.LoginFailed(reason)
	e.logger.Info("login failed", "reason", reason, "account_id", accountID, "ip", opts.IP)
}

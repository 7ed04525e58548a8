package domain

import (
	"errors"
	"time"
)

// Account errors
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account with this email already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountInactive      = errors.New("account is not active")
	ErrAccountLocked        = errors.New("account temporarily locked due to too many failed login attempts")
	ErrIncorrectPassword    = errors.New("current password is incorrect")
)

// Token errors
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrRefreshDenied   = errors.New("refresh token denied")
	ErrTokenNotFound   = errors.New("refresh token not found")
	ErrTokenRevoked    = errors.New("refresh token already revoked")
	ErrForbidden       = errors.New("insufficient role")
	ErrUnauthenticated = errors.New("authentication required")
)

// Infrastructure errors
var (
	ErrCrypto            = errors.New("credential hashing failed")
	ErrSigning           = errors.New("token signing failed")
	ErrVersionConflict   = errors.New("concurrent update conflict")
	ErrLockoutContention = errors.New("lockout state update contended, retry later")
	ErrStoreTimeout      = errors.New("store operation timed out")
)

// Validation and directory errors
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidName      = errors.New("invalid name")
	ErrWeakPassword     = errors.New("password does not meet requirements")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following this user")
	ErrInvalidQuery     = errors.New("invalid query")
)

// Kind is the external class of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindUnauthorized
	KindForbidden
	KindBadRequest
	KindNotFound
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

// Retryable reports whether the caller may retry the same request.
func (k Kind) Retryable() bool {
	return k == KindUnavailable
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrAccountAlreadyExists, KindConflict},
	{ErrInvalidCredentials, KindUnauthorized},
	{ErrAccountInactive, KindUnauthorized},
	{ErrInvalidToken, KindUnauthorized},
	{ErrTokenExpired, KindUnauthorized},
	{ErrRefreshDenied, KindUnauthorized},
	{ErrUnauthenticated, KindUnauthorized},
	{ErrAccountLocked, KindForbidden},
	{ErrForbidden, KindForbidden},
	{ErrIncorrectPassword, KindBadRequest},
	{ErrInvalidEmail, KindBadRequest},
	{ErrInvalidName, KindBadRequest},
	{ErrWeakPassword, KindBadRequest},
	{ErrInvalidRole, KindBadRequest},
	{ErrInvalidStatus, KindBadRequest},
	{ErrSelfFollow, KindBadRequest},
	{ErrAlreadyFollowing, KindBadRequest},
	{ErrInvalidQuery, KindBadRequest},
	{ErrAccountNotFound, KindNotFound},
	{ErrTokenNotFound, KindNotFound},
	{ErrLockoutContention, KindUnavailable},
	{ErrStoreTimeout, KindUnavailable},
	{ErrVersionConflict, KindUnavailable},
}

// Classify maps an error to its external kind. Unknown errors, including
// ErrCrypto and ErrSigning, are internal.
func Classify(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// LockedError reports a locked account together with when the lock lifts.
// Remaining is the lock time left on the clock that raised the error.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return ErrAccountLocked.Error()
}

func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// RetryAfter returns the remaining lock time relative to now.
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

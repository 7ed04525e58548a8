package auth

import (
	"time"

	"github.com/tendant/simple-accounts/pkg/domain"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 2 * time.Hour
)

// LockoutPolicy is the per-account brute-force state machine. It only
// transforms state; callers persist the result with a conditional write.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy locks for 2 hours after 5 consecutive failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts: DefaultMaxFailedAttempts,
		Duration:    DefaultLockoutDuration,
	}
}

// Decision is the outcome of a lockout check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Check denies while the lock is in force. An expired lock is treated as
// open but its counter is left for OnFailure/OnSuccess to resolve.
func (p LockoutPolicy) Check(state domain.LockoutState, now time.Time) Decision {
	if state.IsLocked(now) {
		return Decision{Allowed: false, RetryAfter: state.LockedUntil.Sub(now)}
	}
	return Decision{Allowed: true}
}

// OnFailure records a failed attempt.
func (p LockoutPolicy) OnFailure(state domain.LockoutState, now time.Time) domain.LockoutState {
	if state.LockedUntil != nil && !now.Before(*state.LockedUntil) {
		return domain.LockoutState{Attempts: 1}
	}

	next := domain.LockoutState{
		Attempts:    state.Attempts + 1,
		LockedUntil: state.LockedUntil,
	}
	if next.Attempts >= p.maxAttempts() {
		until := now.Add(p.duration())
		next.LockedUntil = &until
	}
	return next
}

// OnSuccess clears the counter and any lock.
func (p LockoutPolicy) OnSuccess(domain.LockoutState) domain.LockoutState {
	return domain.LockoutState{}
}

func (p LockoutPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxFailedAttempts
	}
	return p.MaxAttempts
}

func (p LockoutPolicy) duration() time.Duration {
	if p.Duration <= 0 {
		return DefaultLockoutDuration
	}
	return p.Duration
}

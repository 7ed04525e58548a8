package auth

import (
	"testing"
	"time"

	"github.com/tendant/simple-accounts/pkg/domain"
)

func TestLockoutPolicy_OnFailure(t *testing.T) {
	p := DefaultLockoutPolicy()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	active := now.Add(time.Hour)

	tests := []struct {
		name         string
		state        domain.LockoutState
		wantAttempts int
		wantLocked   bool
	}{
		{name: "first failure", state: domain.LockoutState{}, wantAttempts: 1},
		{name: "fourth failure", state: domain.LockoutState{Attempts: 3}, wantAttempts: 4},
		{name: "fifth failure locks", state: domain.LockoutState{Attempts: 4}, wantAttempts: 5, wantLocked: true},
		{name: "failure after expired lock restarts", state: domain.LockoutState{Attempts: 5, LockedUntil: &expired}, wantAttempts: 1},
		{name: "failure while locked extends", state: domain.LockoutState{Attempts: 5, LockedUntil: &active}, wantAttempts: 6, wantLocked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.OnFailure(tt.state, now)
			if got.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", got.Attempts, tt.wantAttempts)
			}
			if got.IsLocked(now) != tt.wantLocked {
				t.Errorf("IsLocked = %v, want %v", got.IsLocked(now), tt.wantLocked)
			}
			if tt.wantLocked && !got.LockedUntil.Equal(now.Add(2*time.Hour)) {
				t.Errorf("LockedUntil = %v, want %v", got.LockedUntil, now.Add(2*time.Hour))
			}
		})
	}
}

func TestLockoutPolicy_Check(t *testing.T) {
	p := DefaultLockoutPolicy()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)

	d := p.Check(domain.LockoutState{Attempts: 5, LockedUntil: &until}, now)
	if d.Allowed {
		t.Fatal("Check() allowed a locked account")
	}
	if d.RetryAfter != 30*time.Minute {
		t.Errorf("RetryAfter = %v, want 30m", d.RetryAfter)
	}

	if !p.Check(domain.LockoutState{Attempts: 5, LockedUntil: &until}, until).Allowed {
		t.Error("Check() should allow once the lock has expired")
	}
	if !p.Check(domain.LockoutState{Attempts: 4}, now).Allowed {
		t.Error("Check() should allow below the threshold")
	}
}

func TestLockoutPolicy_OnSuccess(t *testing.T) {
	until := time.Now().Add(time.Hour)
	got := DefaultLockoutPolicy().OnSuccess(domain.LockoutState{Attempts: 3, LockedUntil: &until})
	if !got.IsClear() {
		t.Errorf("OnSuccess() = %+v, want zero state", got)
	}
}

func TestLockoutPolicy_CustomThreshold(t *testing.T) {
	p := LockoutPolicy{MaxAttempts: 2, Duration: time.Minute}
	now := time.Now()

	s := p.OnFailure(domain.LockoutState{}, now)
	if s.IsLocked(now) {
		t.Fatal("locked after one failure")
	}
	s = p.OnFailure(s, now)
	if !s.IsLocked(now) || !s.IsLocked(now.Add(59*time.Second)) || s.IsLocked(now.Add(time.Minute)) {
		t.Errorf("lock window wrong: %+v", s)
	}
}

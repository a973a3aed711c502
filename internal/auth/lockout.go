// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that locks an account.
	DefaultLockoutThreshold = 5

	// DefaultLockoutDuration is how long a locked account rejects logins.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutPolicy decides when repeated failed logins lock an account.
//
// The counter resets to 0 on the attempt that applies the lock, so after the
// lock expires a user again gets the full threshold of attempts.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the policy used when none is configured.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// Validate checks the policy is usable.
func (p LockoutPolicy) Validate() error {
	if p.Threshold < 1 {
		return oops.Code("LOCKOUT_POLICY_INVALID").With("threshold", p.Threshold).Errorf("lockout threshold must be at least 1")
	}
	if p.Duration <= 0 {
		return oops.Code("LOCKOUT_POLICY_INVALID").With("duration", p.Duration).Errorf("lockout duration must be positive")
	}
	return nil
}

// LockoutState is the per-user lockout record after an update.
type LockoutState struct {
	LoginAttempts int
	LockUntil     *time.Time
}

// LockedAt reports whether the state is locked at now.
func (s LockoutState) LockedAt(now time.Time) bool {
	return IsLockedAt(s.LockUntil, now)
}

// NextFailure applies one failed attempt to state at now.
// Stores that cannot express this as a single conditional update must hold
// a per-user lock around the read and the write.
func (p LockoutPolicy) NextFailure(state LockoutState, now time.Time) LockoutState {
	attempts := state.LoginAttempts + 1
	if attempts >= p.Threshold {
		until := now.Add(p.Duration)
		return LockoutState{LoginAttempts: 0, LockUntil: &until}
	}
	return LockoutState{LoginAttempts: attempts, LockUntil: state.LockUntil}
}

// IsLockedAt returns true if lockUntil is set and after now.
func IsLockedAt(lockUntil *time.Time, now time.Time) bool {
	return lockUntil != nil && lockUntil.After(now)
}

// LockoutRemaining returns the time left on a lock, or 0 if not locked.
func LockoutRemaining(lockUntil *time.Time, now time.Time) time.Duration {
	if !IsLockedAt(lockUntil, now) {
		return 0
	}
	return lockUntil.Sub(now)
}

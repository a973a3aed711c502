// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

func TestIsLockedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("nil lock_until means not locked", func(t *testing.T) {
		assert.False(t, auth.IsLockedAt(nil, now))
	})

	t.Run("past lock_until means not locked", func(t *testing.T) {
		past := now.Add(-time.Second)
		assert.False(t, auth.IsLockedAt(&past, now))
	})

	t.Run("lock_until equal to now means not locked", func(t *testing.T) {
		assert.False(t, auth.IsLockedAt(&now, now))
	})

	t.Run("future lock_until means locked", func(t *testing.T) {
		future := now.Add(time.Minute)
		assert.True(t, auth.IsLockedAt(&future, now))
	})
}

func TestLockoutRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)

	assert.Equal(t, 10*time.Minute, auth.LockoutRemaining(&until, now))
	assert.Zero(t, auth.LockoutRemaining(&until, until.Add(time.Second)))
	assert.Zero(t, auth.LockoutRemaining(nil, now))
}

func TestLockoutPolicy_NextFailure(t *testing.T) {
	policy := auth.LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("increments below threshold", func(t *testing.T) {
		state := policy.NextFailure(auth.LockoutState{LoginAttempts: 2}, now)
		assert.Equal(t, 3, state.LoginAttempts)
		assert.Nil(t, state.LockUntil)
		assert.False(t, state.LockedAt(now))
	})

	t.Run("locks on the attempt that reaches the threshold", func(t *testing.T) {
		state := auth.LockoutState{}
		for i := 0; i < 4; i++ {
			state = policy.NextFailure(state, now)
			require.False(t, state.LockedAt(now), "attempt %d", i+1)
		}
		state = policy.NextFailure(state, now)
		require.NotNil(t, state.LockUntil)
		assert.Equal(t, now.Add(15*time.Minute), *state.LockUntil)
		assert.Zero(t, state.LoginAttempts)
		assert.True(t, state.LockedAt(now))
	})

	t.Run("expired lock needs the full threshold again", func(t *testing.T) {
		stale := now.Add(-time.Minute)
		state := auth.LockoutState{LockUntil: &stale}
		for i := 0; i < 4; i++ {
			state = policy.NextFailure(state, now)
			require.False(t, state.LockedAt(now))
		}
		assert.Equal(t, 4, state.LoginAttempts)
	})

	t.Run("threshold of one locks immediately", func(t *testing.T) {
		strict := auth.LockoutPolicy{Threshold: 1, Duration: time.Minute}
		assert.True(t, strict.NextFailure(auth.LockoutState{}, now).LockedAt(now))
	})
}

func TestLockoutPolicy_Validate(t *testing.T) {
	require.NoError(t, auth.DefaultLockoutPolicy().Validate())

	err := auth.LockoutPolicy{Threshold: 0, Duration: time.Minute}.Validate()
	errutil.AssertErrorCode(t, err, "LOCKOUT_POLICY_INVALID")

	err = auth.LockoutPolicy{Threshold: 3}.Validate()
	errutil.AssertErrorCode(t, err, "LOCKOUT_POLICY_INVALID")
}

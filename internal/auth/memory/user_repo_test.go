// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
)

func newUser(username, email, phone string) *auth.User {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return auth.NewUser(auth.RegisterInput{
		Username:    username,
		Email:       email,
		PhoneNumber: phone,
	}, "$argon2id$hash", auth.RoleUser, now)
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	alice := newUser("alice", "a@x.com", "+15551234567")
	require.NoError(t, repo.Create(ctx, alice))

	tests := []struct {
		name  string
		user  *auth.User
		field auth.Field
	}{
		{"duplicate email", newUser("bob", "a@x.com", "+15550000001"), auth.FieldEmail},
		{"duplicate username", newUser("alice", "b@x.com", "+15550000002"), auth.FieldUsername},
		{"duplicate phone", newUser("carol", "c@x.com", "+15551234567"), auth.FieldPhone},
		{"email wins over username", newUser("alice", "a@x.com", "+15550000003"), auth.FieldEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.user)
			var dup *auth.DuplicateError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, tt.field, dup.Field)
		})
	}
}

func TestUserRepository_Reads(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	alice := newUser("alice", "a@x.com", "+15551234567")
	bob := newUser("bob", "b@x.com", "+15557654321")
	require.NoError(t, repo.Create(ctx, alice))
	require.NoError(t, repo.Create(ctx, bob))

	t.Run("GetCredentials includes the password hash", func(t *testing.T) {
		got, err := repo.GetCredentials(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "$argon2id$hash", got.PasswordHash)
	})

	t.Run("unknown id is ErrNotFound for updates", func(t *testing.T) {
		assert.ErrorIs(t, repo.ClearLockout(ctx, ulid.Make()), auth.ErrNotFound)
	})

	t.Run("unknown username is ErrNotFound", func(t *testing.T) {
		_, err := repo.GetCredentials(ctx, "nobody")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("FindByIdentifiers returns each match once", func(t *testing.T) {
		users, err := repo.FindByIdentifiers(ctx, auth.Identifiers{
			Username:    "alice",
			Email:       "b@x.com",
			PhoneNumber: "+15551234567",
		})
		require.NoError(t, err)
		require.Len(t, users, 2)
		for _, u := range users {
			assert.Empty(t, u.PasswordHash)
		}
	})

	t.Run("FindByIdentifiers with no match is empty", func(t *testing.T) {
		users, err := repo.FindByIdentifiers(ctx, auth.Identifiers{Username: "zed", Email: "z@x.com", PhoneNumber: "+15550000000"})
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("cancelled context is surfaced", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := repo.GetCredentials(cancelled, "alice")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestUserRepository_LockoutUpdates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	policy := auth.LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	user := newUser("alice", "a@x.com", "+15551234567")
	require.NoError(t, repo.Create(ctx, user))

	state, err := repo.RecordFailedAttempt(ctx, user.ID, policy, now)
	require.NoError(t, err)
	assert.Equal(t, 1, state.LoginAttempts)

	_, err = repo.RecordFailedAttempt(ctx, user.ID, policy, now)
	require.NoError(t, err)
	state, err = repo.RecordFailedAttempt(ctx, user.ID, policy, now)
	require.NoError(t, err)
	assert.True(t, state.LockedAt(now))

	stored, err := repo.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.IsLockedAt(now))

	previous, err := repo.RecordSuccessfulLogin(ctx, user.ID, now)
	require.NoError(t, err)
	assert.Nil(t, previous)

	stored, err = repo.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, stored.LoginAttempts)
	assert.Nil(t, stored.LockUntil)
	require.NotNil(t, stored.LastLogin)
	assert.Equal(t, now, *stored.LastLogin)

	later := now.Add(time.Hour)
	previous, err = repo.RecordSuccessfulLogin(ctx, user.ID, later)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, now, *previous)
}

func TestUserRepository_ConcurrentFailedAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	repo := memory.NewUserRepository()
	policy := auth.LockoutPolicy{Threshold: 1000, Duration: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	user := newUser("alice", "a@x.com", "+15551234567")
	require.NoError(t, repo.Create(ctx, user))

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.RecordFailedAttempt(ctx, user.ID, policy, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, workers, stored.LoginAttempts)
}

func TestUserRepository_AdminUpdates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	user := newUser("alice", "a@x.com", "+15551234567")
	require.NoError(t, repo.Create(ctx, user))

	require.NoError(t, repo.SetActive(ctx, user.ID, false))
	_, err := repo.RecordFailedAttempt(ctx, user.ID, auth.LockoutPolicy{Threshold: 1, Duration: time.Hour}, now)
	require.NoError(t, err)
	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "$argon2id$new"))

	stored, err := repo.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.True(t, stored.IsLockedAt(now))
	assert.Equal(t, "$argon2id$new", stored.PasswordHash)

	require.NoError(t, repo.ClearLockout(ctx, user.ID))
	stored, err = repo.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, stored.IsLockedAt(now))

	assert.ErrorIs(t, repo.SetActive(ctx, ulid.Make(), true), auth.ErrNotFound)
}

func TestUserRepository_ListLocked(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := auth.LockoutPolicy{Threshold: 1, Duration: 10 * time.Minute}

	early := newUser("early", "e@x.com", "+15550000011")
	late := newUser("late", "l@x.com", "+15550000012")
	expired := newUser("expired", "x@x.com", "+15550000013")
	free := newUser("free", "f@x.com", "+15550000014")
	for _, u := range []*auth.User{early, late, expired, free} {
		require.NoError(t, repo.Create(ctx, u))
	}

	_, err := repo.RecordFailedAttempt(ctx, late.ID, policy, now)
	require.NoError(t, err)
	_, err = repo.RecordFailedAttempt(ctx, early.ID, policy, now.Add(-5*time.Minute))
	require.NoError(t, err)
	_, err = repo.RecordFailedAttempt(ctx, expired.ID, policy, now.Add(-time.Hour))
	require.NoError(t, err)

	locked, err := repo.ListLocked(ctx, now)
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, "early", locked[0].Username)
	assert.Equal(t, "late", locked[1].Username)
	assert.Empty(t, locked[0].PasswordHash)
}

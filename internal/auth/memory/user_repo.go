// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process credential store for development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// entry guards a single user record. Lockout read-modify-write holds mu.
type entry struct {
	mu   sync.Mutex
	user auth.User
}

// UserRepository keeps users in maps. The store lock guards the indexes;
// each entry has its own lock for per-user updates.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*entry
	byUsername map[string]ulid.ULID
	byEmail    map[string]ulid.ULID
	byPhone    map[string]ulid.ULID
}

// NewUserRepository creates an empty store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[ulid.ULID]*entry),
		byUsername: make(map[string]ulid.ULID),
		byEmail:    make(map[string]ulid.ULID),
		byPhone:    make(map[string]ulid.ULID),
	}
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return &auth.DuplicateError{Field: auth.FieldEmail}
	}
	if _, ok := r.byUsername[user.Username]; ok {
		return &auth.DuplicateError{Field: auth.FieldUsername}
	}
	if _, ok := r.byPhone[user.PhoneNumber]; ok {
		return &auth.DuplicateError{Field: auth.FieldPhone}
	}

	r.byID[user.ID] = &entry{user: *user}
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
	r.byPhone[user.PhoneNumber] = user.ID
	return nil
}

// FindByIdentifiers returns users matching any identifier, without hashes.
func (r *UserRepository) FindByIdentifiers(ctx context.Context, ids auth.Identifiers) ([]*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[ulid.ULID]bool, 3)
	var users []*auth.User
	for _, lookup := range []struct {
		index map[string]ulid.ULID
		key   string
	}{
		{r.byEmail, ids.Email},
		{r.byUsername, ids.Username},
		{r.byPhone, ids.PhoneNumber},
	} {
		id, ok := lookup.index[lookup.key]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		users = append(users, r.byID[id].snapshot(false))
	}
	return users, nil
}

// GetCredentials retrieves a user by username including the password hash.
func (r *UserRepository) GetCredentials(ctx context.Context, username string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	id, ok := r.byUsername[username]
	var e *entry
	if ok {
		e = r.byID[id]
	}
	r.mu.RUnlock()

	if e == nil {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return e.snapshot(true), nil
}

// RecordFailedAttempt applies policy to the user's counters under the entry lock.
func (r *UserRepository) RecordFailedAttempt(ctx context.Context, id ulid.ULID, policy auth.LockoutPolicy, now time.Time) (auth.LockoutState, error) {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return auth.LockoutState{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := policy.NextFailure(e.user.Lockout(), now)
	e.user.LoginAttempts = next.LoginAttempts
	e.user.LockUntil = next.LockUntil
	e.user.UpdatedAt = now
	return next, nil
}

// RecordSuccessfulLogin resets lockout state and returns the previous last login.
func (r *UserRepository) RecordSuccessfulLogin(ctx context.Context, id ulid.ULID, now time.Time) (*time.Time, error) {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.user.LastLogin
	last := now
	e.user.LoginAttempts = 0
	e.user.LockUntil = nil
	e.user.LastLogin = &last
	e.user.UpdatedAt = now
	return previous, nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(ctx, id, func(u *auth.User) { u.PasswordHash = passwordHash })
}

// SetActive enables or disables the user.
func (r *UserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.update(ctx, id, func(u *auth.User) { u.IsActive = active })
}

// ClearLockout resets the user's lockout counters.
func (r *UserRepository) ClearLockout(ctx context.Context, id ulid.ULID) error {
	return r.update(ctx, id, func(u *auth.User) {
		u.LoginAttempts = 0
		u.LockUntil = nil
	})
}

// ListLocked returns users locked at now ordered by lock expiry.
func (r *UserRepository) ListLocked(ctx context.Context, now time.Time) ([]*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var locked []*auth.User
	for _, e := range entries {
		if u := e.snapshot(false); u.IsLockedAt(now) {
			locked = append(locked, u)
		}
	}
	sort.Slice(locked, func(i, j int) bool { return locked[i].LockUntil.Before(*locked[j].LockUntil) })
	return locked, nil
}

// Ping always succeeds.
func (r *UserRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *UserRepository) update(ctx context.Context, id ulid.ULID, fn func(*auth.User)) error {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.user)
	e.user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) lookup(ctx context.Context, id ulid.ULID) (*entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()

	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return e, nil
}

func (e *entry) snapshot(withHash bool) *auth.User {
	e.mu.Lock()
	defer e.mu.Unlock()

	u := e.user
	if !withHash {
		u.PasswordHash = ""
	}
	if u.LockUntil != nil {
		t := *u.LockUntil
		u.LockUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		u.LastLogin = &t
	}
	return &u
}

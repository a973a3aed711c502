// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

// DefaultMinPasswordLength is the shortest password accepted at registration.
const DefaultMinPasswordLength = 8

// Role is the single authorization attribute carried by a user.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a stored credential record.
//
// PasswordHash is only populated by UserRepository.GetCredentials.
type User struct {
	ID            ulid.ULID
	Username      string
	Email         string
	PhoneNumber   string
	PasswordHash  string
	Role          Role
	IsActive      bool
	LoginAttempts int
	LockUntil     *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsLockedAt reports whether the user is locked out at now.
func (u *User) IsLockedAt(now time.Time) bool {
	return IsLockedAt(u.LockUntil, now)
}

// Lockout returns the user's lockout counters.
func (u *User) Lockout() LockoutState {
	return LockoutState{LoginAttempts: u.LoginAttempts, LockUntil: u.LockUntil}
}

// Identity is the public projection of a user returned to callers.
type Identity struct {
	ID        ulid.ULID
	Username  string
	Email     string
	Role      Role
	CreatedAt time.Time
	LastLogin *time.Time
}

// Identity returns the public projection of u.
func (u *User) Identity() Identity {
	return Identity{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// RegisterInput carries the fields submitted at registration.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	PhoneNumber string
}

// Normalize trims username, email and phone and lowercases username and
// email. The password is kept exactly as sent so login can match it.
func (in RegisterInput) Normalize() RegisterInput {
	return RegisterInput{
		Username:    NormalizeUsername(in.Username),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		Password:    in.Password,
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
	}
}

// NormalizeUsername returns the canonical form used for lookups.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a normalized input. Rules are applied in order: presence,
// email format, E.164 phone format, then password length.
func (in RegisterInput) Validate(minPasswordLength int) error {
	if in.Username == "" || in.Email == "" || strings.TrimSpace(in.Password) == "" || in.PhoneNumber == "" {
		return validationError(MsgFieldsRequired)
	}
	if err := validate.Var(in.Email, "email"); err != nil {
		return validationError(MsgInvalidEmail)
	}
	if err := validate.Var(in.PhoneNumber, "e164"); err != nil {
		return validationError(MsgInvalidPhone)
	}
	if len([]rune(in.Password)) < minPasswordLength {
		return validationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	return nil
}

// NewUser builds a record for a validated input with default role, active
// status and zeroed lockout state.
func NewUser(in RegisterInput, passwordHash string, role Role, now time.Time) *User {
	return &User{
		ID:           ulid.Make(),
		Username:     in.Username,
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Identifiers holds the unique fields used to detect collisions.
type Identifiers struct {
	Username    string
	Email       string
	PhoneNumber string
}

// UserRepository persists credential records.
//
// Reads other than GetCredentials never populate PasswordHash.
// RecordFailedAttempt and RecordSuccessfulLogin must be atomic per user.
type UserRepository interface {
	// Create stores a new user. Returns *DuplicateError when a unique
	// identifier is already taken.
	Create(ctx context.Context, user *User) error

	// FindByIdentifiers returns every user matching any of the identifiers.
	FindByIdentifiers(ctx context.Context, ids Identifiers) ([]*User, error)

	// GetCredentials retrieves a user by normalized username including the
	// password hash. Returns ErrNotFound if absent.
	GetCredentials(ctx context.Context, username string) (*User, error)

	// RecordFailedAttempt applies one failed login under policy at now and
	// returns the resulting state.
	RecordFailedAttempt(ctx context.Context, id ulid.ULID, policy LockoutPolicy, now time.Time) (LockoutState, error)

	// RecordSuccessfulLogin clears lockout state, sets last login to now and
	// returns the previous last login.
	RecordSuccessfulLogin(ctx context.Context, id ulid.ULID, now time.Time) (*time.Time, error)

	// UpdatePasswordHash replaces the stored hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetActive enables or disables login for the user.
	SetActive(ctx context.Context, id ulid.ULID, active bool) error

	// ClearLockout resets login attempts and lock expiry.
	ClearLockout(ctx context.Context, id ulid.ULID) error

	// ListLocked returns users whose lock is still in force at now, soonest
	// expiry first.
	ListLocked(ctx context.Context, now time.Time) ([]*User, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

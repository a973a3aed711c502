// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// Unique constraints on the users table, as created by the initial migration.
const (
	constraintEmail    = "users_email_key"
	constraintUsername = "users_username_key"
	constraintPhone    = "users_phone_number_key"
)

// Querier is the subset of *pgxpool.Pool used by UserRepository.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Querier) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ auth.UserRepository = (*UserRepository)(nil)

const userColumns = `id, username, email, phone_number, role, is_active,
	       login_attempts, lock_until, last_login, created_at, updated_at`

// Create inserts a new user. Unique violations become *auth.DuplicateError.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, email, phone_number, password_hash, role, is_active,
			login_attempts, lock_until, last_login, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PhoneNumber,
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
		user.LoginAttempts,
		user.LockUntil,
		user.LastLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateFrom(err); dup != nil {
			return dup
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// duplicateFrom maps a unique violation to the identifier it collided on.
func duplicateFrom(err error) *auth.DuplicateError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case constraintEmail:
		return &auth.DuplicateError{Field: auth.FieldEmail}
	case constraintUsername:
		return &auth.DuplicateError{Field: auth.FieldUsername}
	case constraintPhone:
		return &auth.DuplicateError{Field: auth.FieldPhone}
	default:
		return nil
	}
}

// FindByIdentifiers returns users matching the username, email or phone number.
// Empty identifiers never match.
func (r *UserRepository) FindByIdentifiers(ctx context.Context, ids auth.Identifiers) ([]*auth.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 <> '' AND username = $1)
		   OR ($2 <> '' AND email = $2)
		   OR ($3 <> '' AND phone_number = $3)
		ORDER BY created_at
	`, ids.Username, ids.Email, ids.PhoneNumber)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find by identifiers").Wrap(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_QUERY_FAILED").With("operation", "scan user row").Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return users, nil
}

// GetCredentials retrieves a user by username including the password hash.
func (r *UserRepository) GetCredentials(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM users
		WHERE username = $1
	`, username)

	var hash string
	user, err := scanUser(row, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get credentials").
			With("username", username).
			Wrap(err)
	}
	user.PasswordHash = hash
	return user, nil
}

// RecordFailedAttempt increments the counter in one statement. Reaching the
// policy threshold sets lock_until and resets the counter.
func (r *UserRepository) RecordFailedAttempt(ctx context.Context, id ulid.ULID, policy auth.LockoutPolicy, now time.Time) (auth.LockoutState, error) {
	var state auth.LockoutState
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET
			login_attempts = CASE WHEN login_attempts + 1 >= $2 THEN 0 ELSE login_attempts + 1 END,
			lock_until     = CASE WHEN login_attempts + 1 >= $2 THEN $3 ELSE lock_until END,
			updated_at     = $4
		WHERE id = $1
		RETURNING login_attempts, lock_until
	`, id.String(), policy.Threshold, now.Add(policy.Duration), now).Scan(&state.LoginAttempts, &state.LockUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.LockoutState{}, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.LockoutState{}, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record failed attempt").
			With("user_id", id.String()).
			Wrap(err)
	}
	return state, nil
}

// RecordSuccessfulLogin clears the lockout, stamps last_login and returns the
// value it replaced.
func (r *UserRepository) RecordSuccessfulLogin(ctx context.Context, id ulid.ULID, now time.Time) (*time.Time, error) {
	var previous *time.Time
	err := r.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT last_login FROM users WHERE id = $1 FOR UPDATE
		)
		UPDATE users SET
			login_attempts = 0,
			lock_until     = NULL,
			last_login     = $2,
			updated_at     = $2
		WHERE id = $1
		RETURNING (SELECT last_login FROM prev)
	`, id.String(), now).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record successful login").
			With("user_id", id.String()).
			Wrap(err)
	}
	return previous, nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(ctx, "update password hash", id,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, passwordHash)
}

// SetActive enables or disables the account.
func (r *UserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.update(ctx, "set active", id,
		`UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, active)
}

// ClearLockout resets the failed attempt counter and lock.
func (r *UserRepository) ClearLockout(ctx context.Context, id ulid.ULID) error {
	return r.update(ctx, "clear lockout", id,
		`UPDATE users SET login_attempts = 0, lock_until = NULL, updated_at = now() WHERE id = $1`)
}

// ListLocked returns users whose lock_until is after now.
func (r *UserRepository) ListLocked(ctx context.Context, now time.Time) ([]*auth.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lock_until IS NOT NULL AND lock_until > $1
		ORDER BY lock_until
	`, now)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "list locked").Wrap(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_QUERY_FAILED").With("operation", "scan locked user").Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "iterate locked users").Wrap(err)
	}
	return users, nil
}

func (r *UserRepository) update(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks the database is reachable.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("USER_STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

// scanUser scans userColumns followed by any extra destinations.
func scanUser(row pgx.Row, extra ...any) (*auth.User, error) {
	var (
		user    auth.User
		idStr   string
		roleStr string
	)
	dest := []any{
		&idStr,
		&user.Username,
		&user.Email,
		&user.PhoneNumber,
		&roleStr,
		&user.IsActive,
		&user.LoginAttempts,
		&user.LockUntil,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	user.Role = auth.Role(roleStr)
	return &user, nil
}

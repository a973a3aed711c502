// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultStoreTimeout bounds every credential store call.
const DefaultStoreTimeout = 5 * time.Second

// dummyPasswordHash is verified when the username does not exist so that
// unknown users cost the same as wrong passwords.
//
//nolint:gosec // G101: intentionally fake digest, never matches any password.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Denylist records revoked session tokens until their natural expiry.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Ping(ctx context.Context) error
}

// ServiceConfig holds the process-wide settings the service reads.
type ServiceConfig struct {
	Lockout           LockoutPolicy
	MinPasswordLength int
	StoreTimeout      time.Duration
}

// Service composes the credential store, hasher, lockout policy and token
// issuer into register, login, logout and request authentication.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   *TokenIssuer
	cfg      ServiceConfig
	denylist Denylist
	onLocked func(username string)
	now      func() time.Time
	logger   *slog.Logger
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithClock sets the clock used for lockout decisions and timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithDenylist enables server-side revocation on logout.
func WithDenylist(d Denylist) ServiceOption {
	return func(s *Service) { s.denylist = d }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithLockoutHook registers a callback invoked when a failed login locks an account.
func WithLockoutHook(fn func(username string)) ServiceOption {
	return func(s *Service) { s.onLocked = fn }
}

// NewService creates a Service.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenIssuer, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token issuer is required")
	}
	if err := cfg.Lockout.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinPasswordLength < 1 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("min_password_length", cfg.MinPasswordLength).
			Errorf("minimum password length must be at least 1")
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}

	s := &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	// Identity carries the previous LastLogin, nil on first login.
	Identity Identity
	Token    IssuedToken
}

// Register creates a user with the default role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	return s.register(ctx, in, RoleUser)
}

// RegisterAdmin creates a user with the admin role.
func (s *Service) RegisterAdmin(ctx context.Context, in RegisterInput) (Identity, error) {
	return s.register(ctx, in, RoleAdmin)
}

func (s *Service) register(ctx context.Context, in RegisterInput, role Role) (Identity, error) {
	in = in.Normalize()
	if err := in.Validate(s.cfg.MinPasswordLength); err != nil {
		return Identity{}, err
	}

	existing, err := s.findExisting(ctx, in)
	if err != nil {
		return Identity{}, storeError("find existing user", err)
	}
	if field, ok := collision(existing, in); ok {
		return Identity{}, conflictError(field)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Identity{}, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user := NewUser(in, digest, role, s.now().UTC())
	if err := s.create(ctx, user); err != nil {
		// A concurrent registration can win the race after the lookup above.
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return Identity{}, conflictError(dup.Field)
		}
		return Identity{}, storeError("create user", err)
	}

	s.logger.Info("user registered", "user_id", user.ID.String(), "username", user.Username, "role", string(role))
	return user.Identity(), nil
}

// collision picks the reported field by priority: email, username, phone.
func collision(existing []*User, in RegisterInput) (Field, bool) {
	for _, field := range []Field{FieldEmail, FieldUsername, FieldPhone} {
		for _, u := range existing {
			switch {
			case field == FieldEmail && u.Email == in.Email,
				field == FieldUsername && u.Username == in.Username,
				field == FieldPhone && u.PhoneNumber == in.PhoneNumber:
				return field, true
			}
		}
	}
	return "", false
}

// Login verifies a credential pair and issues a session token.
//
// The checks run in a fixed order: account disabled, then locked, then
// password. A locked account never reaches password verification.
//
// The lock gate reads the state loaded by GetCredentials, not the result of
// the atomic failure update. A request that passed the gate just before a
// concurrent failure applied the lock can still verify its password and
// succeed. The attempt counter itself never loses an update.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, validationError(MsgCredentialsRequired)
	}
	username = NormalizeUsername(username)

	user, err := s.getCredentials(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // timing only
		return nil, rejection(CodeInvalidCredentials, MsgInvalidCredentials)
	}
	if err != nil {
		return nil, storeError("get credentials", err)
	}

	if !user.IsActive {
		s.logger.Warn("login rejected for disabled account", "user_id", user.ID.String())
		return nil, rejection(CodeAccountDisabled, MsgAccountDisabled)
	}

	now := s.now().UTC()
	if user.IsLockedAt(now) {
		return nil, oops.Code(CodeAccountLocked).
			With("lock_until", user.LockUntil).
			Public(MsgAccountLocked).
			Errorf("%s", MsgAccountLocked)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Public("Internal server error").
			Wrap(err)
	}
	if !ok {
		return nil, s.failedAttempt(ctx, user, now)
	}

	previous, err := s.recordSuccess(ctx, user, now)
	if err != nil {
		return nil, storeError("record successful login", err)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	issued, err := s.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			Public("Internal server error").
			Wrap(err)
	}

	identity := user.Identity()
	identity.LastLogin = previous
	return &LoginResult{Identity: identity, Token: issued}, nil
}

func (s *Service) failedAttempt(ctx context.Context, user *User, now time.Time) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	state, err := s.users.RecordFailedAttempt(ctx, user.ID, s.cfg.Lockout, now)
	if err != nil {
		return storeError("record failed attempt", err)
	}
	if state.LockedAt(now) {
		s.logger.Warn("account locked after failed logins",
			"user_id", user.ID.String(),
			"username", user.Username,
			"lock_until", state.LockUntil,
		)
		if s.onLocked != nil {
			s.onLocked(user.Username)
		}
	}
	return rejection(CodeInvalidCredentials, MsgInvalidCredentials)
}

func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", user.ID.String(), "error", err)
		return
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.users.UpdatePasswordHash(ctx, user.ID, digest); err != nil {
		s.logger.Warn("password rehash not stored", "user_id", user.ID.String(), "error", err)
		return
	}
	s.logger.Info("password hash upgraded", "user_id", user.ID.String())
}

// Logout revokes the token when a deny-list is configured. Without one it
// does nothing: the caller clears the cookie and the token stays valid until
// it expires. Invalid or expired tokens need no revocation.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if s.denylist == nil || raw == "" {
		return nil
	}
	claims, err := s.tokens.Verify(raw)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.UTC()); err != nil {
		return oops.Code("AUTH_REVOKE_FAILED").
			With("token_id", claims.ID).
			Public("Internal server error").
			Wrap(err)
	}
	return nil
}

// Authenticate resolves the claims of an inbound session token.
func (s *Service) Authenticate(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, rejection(CodeSessionMissing, MsgSessionMissing)
	}

	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}

	if s.denylist != nil && claims.ID != "" {
		ctx, cancel := s.storeContext(ctx)
		defer cancel()

		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.logger.Error("deny-list check failed", "token_id", claims.ID, "error", err)
			return nil, rejection(CodeSessionRevoked, MsgSessionInvalid)
		}
		if revoked {
			return nil, rejection(CodeSessionRevoked, MsgSessionInvalid)
		}
	}
	return claims, nil
}

// SetActive enables or disables login for username.
func (s *Service) SetActive(ctx context.Context, username string, active bool) error {
	user, err := s.lookupForAdmin(ctx, username)
	if err != nil {
		return err
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.users.SetActive(ctx, user.ID, active); err != nil {
		return storeError("set active", err)
	}
	s.logger.Info("account status changed", "user_id", user.ID.String(), "active", active)
	return nil
}

// Unlock clears failed attempts and any lock on username.
func (s *Service) Unlock(ctx context.Context, username string) error {
	user, err := s.lookupForAdmin(ctx, username)
	if err != nil {
		return err
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.users.ClearLockout(ctx, user.ID); err != nil {
		return storeError("clear lockout", err)
	}
	s.logger.Info("account unlocked", "user_id", user.ID.String())
	return nil
}

// LockedAccount is a locked user with the time left on its lock.
type LockedAccount struct {
	Username  string
	LockUntil time.Time
	Remaining time.Duration
}

// LockedAccounts lists accounts that cannot log in until their lock expires.
func (s *Service) LockedAccounts(ctx context.Context) ([]LockedAccount, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	now := s.now().UTC()
	users, err := s.users.ListLocked(ctx, now)
	if err != nil {
		return nil, storeError("list locked", err)
	}
	locked := make([]LockedAccount, 0, len(users))
	for _, u := range users {
		remaining := LockoutRemaining(u.LockUntil, now)
		if remaining == 0 {
			continue
		}
		locked = append(locked, LockedAccount{Username: u.Username, LockUntil: *u.LockUntil, Remaining: remaining})
	}
	return locked, nil
}

// Ready reports whether the credential store and, when configured, the
// deny-list are reachable.
func (s *Service) Ready(ctx context.Context) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.users.Ping(ctx); err != nil {
		return err
	}
	if s.denylist != nil {
		return s.denylist.Ping(ctx)
	}
	return nil
}

func (s *Service) lookupForAdmin(ctx context.Context, username string) (*User, error) {
	user, err := s.getCredentials(ctx, NormalizeUsername(username))
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(err)
	}
	if err != nil {
		return nil, storeError("get user", err)
	}
	return user, nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *Service) findExisting(ctx context.Context, in RegisterInput) ([]*User, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.users.FindByIdentifiers(ctx, Identifiers{
		Username:    in.Username,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
	})
}

func (s *Service) create(ctx context.Context, user *User) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.users.Create(ctx, user)
}

func (s *Service) getCredentials(ctx context.Context, username string) (*User, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.users.GetCredentials(ctx, username)
}

func (s *Service) recordSuccess(ctx context.Context, user *User, now time.Time) (*time.Time, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.users.RecordSuccessfulLogin(ctx, user.ID, now)
}

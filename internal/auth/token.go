// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTokenExpiry is the lifetime of a session token.
const DefaultTokenExpiry = 2 * time.Hour

// MinSecretLength is the shortest accepted HMAC signing secret in bytes.
const MinSecretLength = 16

// Claims are the identity assertions carried by a session token.
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is a freshly signed session token.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock sets the clock used for issuance and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// NewTokenIssuer creates a TokenIssuer. The secret is fixed for the life of
// the issuer; replacing it invalidates every outstanding token.
func NewTokenIssuer(secret []byte, expiry time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if expiry <= 0 {
		return nil, oops.Code("TOKEN_EXPIRY_INVALID").With("expiry", expiry).Errorf("token expiry must be positive")
	}

	t := &TokenIssuer{
		secret: append([]byte(nil), secret...),
		expiry: expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue signs a token for the given identity.
func (t *TokenIssuer) Issue(id ulid.ULID, username string, role Role) (IssuedToken, error) {
	now := t.now()
	expiresAt := now.Add(t.expiry)
	tokenID := ulid.Make().String()

	claims := Claims{
		UserID:   id.String(),
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return IssuedToken{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}

	return IssuedToken{
		Token:     signed,
		ID:        tokenID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks the signature and then the expiry of raw.
//
// Failures carry one of SESSION_MALFORMED, SESSION_EXPIRED or
// SESSION_MISSING_SUBJECT. A token signed with another secret is always
// SESSION_MALFORMED, even when it has also expired.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, t.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeSessionExpired).
				Public(MsgSessionExpired).
				Wrap(err)
		}
		return nil, oops.Code(CodeSessionMalformed).
			Public(MsgSessionInvalid).
			Wrap(err)
	}

	if claims.UserID == "" {
		return nil, rejection(CodeSessionMissingSubject, MsgSessionMissingSubject)
	}
	return claims, nil
}

func (t *TokenIssuer) key(_ *jwt.Token) (any, error) {
	return t.secret, nil
}

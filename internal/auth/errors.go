// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// Error codes attached to domain rejections. Transports map codes to status.
const (
	CodeValidation         = "AUTH_VALIDATION"
	CodeConflict           = "AUTH_CONFLICT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountDisabled    = "AUTH_ACCOUNT_DISABLED"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeStoreUnavailable   = "AUTH_STORE_UNAVAILABLE"

	CodeSessionMissing        = "SESSION_MISSING"
	CodeSessionMalformed      = "SESSION_MALFORMED"
	CodeSessionExpired        = "SESSION_EXPIRED"
	CodeSessionMissingSubject = "SESSION_MISSING_SUBJECT"
	CodeSessionRevoked        = "SESSION_REVOKED"
)

// User-visible messages.
const (
	MsgFieldsRequired      = "All fields are required"
	MsgInvalidEmail        = "Enter a valid email address"
	MsgInvalidPhone        = "Enter a valid phone number"
	MsgCredentialsRequired = "Username and password are required"
	MsgInvalidCredentials  = "Invalid credentials"
	MsgAccountDisabled     = "Account is disabled. Contact admin."
	MsgAccountLocked       = "Account temporarily locked due to failed logins"

	MsgSessionMissing        = "Unauthorized. Please login"
	MsgSessionMissingSubject = "Invalid authentication payload"
	MsgSessionExpired        = "Session expired. Please login again"
	MsgSessionInvalid        = "Invalid token"
)

// Field names a unique identifier of a user.
type Field string

// Unique user identifiers, in conflict-reporting priority order.
const (
	FieldEmail    Field = "email"
	FieldUsername Field = "username"
	FieldPhone    Field = "phone_number"
)

// ConflictMessage returns the user-visible message for a duplicate field.
func (f Field) ConflictMessage() string {
	switch f {
	case FieldEmail:
		return "Email is already in use"
	case FieldUsername:
		return "Username is already in use"
	case FieldPhone:
		return "Phone number is already in use"
	default:
		return "Account already exists"
	}
}

// DuplicateError is returned by a UserRepository when a write collides with
// an existing unique identifier.
type DuplicateError struct {
	Field Field
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

func rejection(code, message string) error {
	return oops.Code(code).Public(message).Errorf("%s", message)
}

func validationError(message string) error {
	return rejection(CodeValidation, message)
}

func conflictError(field Field) error {
	return oops.Code(CodeConflict).
		With("field", string(field)).
		Public(field.ConflictMessage()).
		Errorf("%s", field.ConflictMessage())
}

func storeError(operation string, err error) error {
	return oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Public("Internal server error").
		Wrap(err)
}

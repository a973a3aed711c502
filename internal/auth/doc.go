// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the authentication state machine for authgate.
//
// # Domain Types
//
// User is a stored credential record. New records are built with NewUser
// from a RegisterInput that has been normalized and validated. Identity is
// the projection returned to callers and never carries the password hash.
//
// Lock state is not stored. A user is locked while LockUntil is in the
// future, as computed by IsLockedAt. LockoutPolicy decides when a failed
// attempt applies a lock.
//
// # Services
//
//   - Service - register, login, logout and inbound token authentication
//   - TokenIssuer - HS256 session tokens with a fixed lifetime
//   - Argon2idHasher - argon2id digests, with legacy bcrypt verification
//
// Rejections are oops errors with a stable code (see the Code constants)
// and a public message safe to return to clients.
package auth

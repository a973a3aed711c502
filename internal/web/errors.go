// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"strings"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

const sessionCodePrefix = "SESSION_"

// StatusFor maps an auth error to its HTTP status. Every session failure is
// 401 so the status never tells a prober which check rejected the token.
func StatusFor(err error) int {
	code := errutil.Code(err)
	switch code {
	case auth.CodeValidation:
		return http.StatusBadRequest
	case auth.CodeConflict:
		return http.StatusConflict
	case auth.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case auth.CodeAccountDisabled:
		return http.StatusForbidden
	case auth.CodeAccountLocked:
		return http.StatusLocked
	}
	if strings.HasPrefix(code, sessionCodePrefix) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// outcome is the metrics label for a register or login result.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch code := errutil.Code(err); code {
	case auth.CodeValidation, auth.CodeConflict, auth.CodeInvalidCredentials,
		auth.CodeAccountDisabled, auth.CodeAccountLocked:
		return strings.ToLower(strings.TrimPrefix(code, "AUTH_"))
	default:
		return "error"
	}
}

// rejectionReason is the metrics label for a guard rejection.
func rejectionReason(err error) string {
	code := errutil.Code(err)
	if !strings.HasPrefix(code, sessionCodePrefix) {
		return "error"
	}
	return strings.ToLower(strings.TrimPrefix(code, sessionCodePrefix))
}

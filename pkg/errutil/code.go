// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"fmt"

	"github.com/samber/oops"
)

// Code returns the oops error code of err, or "" if it has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := any(oopsErr.Code()).(type) {
	case nil:
		return ""
	case string:
		return code
	default:
		return fmt.Sprint(code)
	}
}

// PublicMessage returns the client-safe message attached to err, or fallback.
func PublicMessage(err error, fallback string) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return fallback
	}
	if public := oopsErr.Public(); public != "" {
		return public
	}
	return fallback
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package auth

import "errors"

var (
	// ErrTokenMissing is returned when no token was presented.
	ErrTokenMissing = errors.New("token missing")

	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers malformed tokens, bad signatures and wrong algorithms.
	ErrTokenInvalid = errors.New("token invalid")
)

// AuthError is returned by TokenVerifier.Verify.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

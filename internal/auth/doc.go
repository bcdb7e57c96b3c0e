// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package auth verifies the HS256 session tokens that clients present when
// opening a realtime socket.
//
// Tokens are issued elsewhere; this package only checks the signature, the
// algorithm and the expiry. Mint exists for pulsectl and tests.
//
// Example:
//
//	verifier, err := auth.NewTokenVerifier(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
//	if err != nil {
//	    return err
//	}
//	claims, err := verifier.Verify(token)
//	if errors.Is(err, auth.ErrTokenExpired) {
//	    // ask the client to refresh
//	}
package auth

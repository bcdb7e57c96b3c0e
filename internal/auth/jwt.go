// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted HS256 secret.
const MinSecretLength = 32

// Claims are the session token claims. The user id is read from UserID and
// falls back to the registered subject.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// User returns the authenticated user id.
func (c *Claims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// TokenVerifier validates HS256 session tokens issued by the platform's
// identity service. It can also mint tokens for development tooling.
type TokenVerifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenVerifier creates a verifier for secret. ttl is the lifetime of
// tokens produced by Mint.
func NewTokenVerifier(secret string, ttl time.Duration) (*TokenVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required but was empty")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenVerifier{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Mint signs a token for userID that expires after the configured ttl.
func (v *TokenVerifier) Mint(userID string) (string, error) {
	now := v.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm and expiry of token and returns its
// claims. Every failure is an *AuthError.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, &AuthError{Reason: "missing token", Err: ErrTokenMissing}
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &AuthError{Reason: "token expired", Err: ErrTokenExpired}
		}
		return nil, &AuthError{Reason: err.Error(), Err: ErrTokenInvalid}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, &AuthError{Reason: "invalid token claims", Err: ErrTokenInvalid}
	}
	if claims.User() == "" {
		return nil, &AuthError{Reason: "token has no user", Err: ErrTokenInvalid}
	}
	return claims, nil
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-with-at-least-32-characters!"

func newVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenVerifier() error = %v", err)
	}
	return v
}

func TestNewTokenVerifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"valid", testSecret, false},
		{"empty", "", true},
		{"short", "too-short", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenVerifier(tt.secret, time.Hour)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTokenVerifier() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMintAndVerify(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	token, err := v.Mint("u42")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.User() != "u42" {
		t.Errorf("User() = %q, want u42", claims.User())
	}

	if _, err := v.Verify("Bearer " + token); err != nil {
		t.Errorf("Verify(Bearer ...) error = %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Mint("u1")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	v.now = time.Now

	_, err = v.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false", err)
	}
}

func TestVerify_Rejections(t *testing.T) {
	t.Parallel()

	v := newVerifier(t)
	other, _ := NewTokenVerifier(strings.Repeat("x", 40), time.Hour)
	foreign, _ := other.Mint("u1")

	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, &Claims{UserID: "u1"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign HS384: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrTokenMissing},
		{"garbage", "not.a.token", ErrTokenInvalid},
		{"wrong secret", foreign, ErrTokenInvalid},
		{"wrong algorithm", hs384, ErrTokenInvalid},
		{"alg none", none, ErrTokenInvalid},
		{"no user", noUser, ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
		})
	}
}

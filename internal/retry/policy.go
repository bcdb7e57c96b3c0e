// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package retry provides the single retry policy shared by ingestion handler
// dispatch, presence flushes and search index writes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ErrExhausted is returned by Do when every attempt failed.
var ErrExhausted = errors.New("retry budget exhausted")

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do stops after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Policy defines bounded exponential backoff with jitter.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first one.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor.
	Multiplier float64

	// JitterFraction is the random jitter fraction (0.0-1.0) applied as +/-.
	JitterFraction float64

	rng   *rand.Rand
	rngMu sync.Mutex
}

// DefaultPolicy returns production defaults: 3 attempts starting at 100ms.
func DefaultPolicy() *Policy {
	return NewPolicyWithSeed(0)
}

// NewPolicyWithSeed creates a Policy with a specific random seed.
// A zero seed uses a time-based seed; tests pass a fixed seed for deterministic jitter.
func NewPolicyWithSeed(seed int64) *Policy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Policy{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		//nolint:gosec // G404: weak random is fine for backoff jitter
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Backoff returns the delay to wait after the given failed attempt (0-based).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	backoff := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	if p.JitterFraction > 0 && p.rng != nil {
		p.rngMu.Lock()
		jitter := backoff * p.JitterFraction * (p.rng.Float64()*2 - 1)
		p.rngMu.Unlock()
		backoff += jitter
	}

	if backoff < 0 {
		return 0
	}
	return time.Duration(backoff)
}

// ShouldRetry reports whether another attempt is allowed after attempt
// (1-based) failed with err.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return attempt < p.maxAttempts()
}

func (p *Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds, returns a permanent error, or the attempt
// budget runs out. It returns the number of attempts made. On exhaustion the
// returned error wraps both ErrExhausted and the last failure.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, fmt.Errorf("%w: %w", err, lastErr)
			}
			return attempt - 1, err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if IsPermanent(lastErr) {
			return attempt, lastErr
		}
		if !p.ShouldRetry(lastErr, attempt) {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
		}

		timer := time.NewTimer(p.Backoff(attempt - 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w: %w", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
}

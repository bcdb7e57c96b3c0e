// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package breaker builds the gobreaker circuit breakers that guard every
// outbound dependency: the broker publisher, the presence store and the
// search index.
package breaker

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/metrics"
)

// Config configures one circuit breaker.
type Config struct {
	Name string

	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval clears the failure counts while closed (0 = never).
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32

	// IsSuccessful classifies errors that do not count as failures (nil = only nil).
	IsSuccessful func(err error) bool
}

// DefaultConfig returns breaker defaults for name.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
	}
}

// New creates a breaker that logs and exports its state transitions.
func New(cfg Config) *gobreaker.CircuitBreaker[any] {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	metrics.RecordCircuitBreakerState(cfg.Name, int(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, int(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// IsOpen reports whether err was produced by an open or saturated breaker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrHandlerPanic marks a handler that panicked. Panics are not retried.
var ErrHandlerPanic = errors.New("handler panicked")

// HandlerError is the terminal failure of one handler for one event.
type HandlerError struct {
	Handler  string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed after %d attempt(s): %v", e.Handler, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

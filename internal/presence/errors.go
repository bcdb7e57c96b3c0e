// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package presence

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable is returned when the fast store cannot be reached or its
// circuit breaker is open. It is transient.
var ErrStoreUnavailable = errors.New("presence store unavailable")

// FlushError reports a batch that could not be written. The entries it covers
// stay dirty and are retried by the next flush.
type FlushError struct {
	Count    int
	Attempts int
	Err      error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("presence flush of %d records failed after %d attempts: %v", e.Count, e.Attempts, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/pulse/internal/logging"
)

// DrainInOrder stops the given services one at a time, waiting up to timeout
// for each before moving on. A service that does not stop in time is logged
// and the drain continues.
//
// The server drains ingestion, then the indexer, the batcher, the socket
// gateway and finally HTTP.
func (t *SupervisorTree) DrainInOrder(timeout time.Duration, order ...Token) error {
	var errs []error
	for i, tok := range order {
		start := time.Now()
		err := t.RemoveAndWait(tok, timeout)

		event := logging.Info()
		if err != nil {
			event = logging.Warn().Err(err)
			errs = append(errs, fmt.Errorf("drain %s: %w", tok.Name, err))
		}
		event.
			Int("step", i+1).
			Str("service", tok.Name).
			Str("layer", tok.Layer.String()).
			Dur("took", time.Since(start)).
			Msg("Drained service")
	}
	return errors.Join(errs...)
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package presence

import (
	"context"

	"github.com/tomtom215/pulse/internal/events"
)

// ActivityHandler marks event actors active. It is registered with the
// ingestion gateway under the name "presence".
type ActivityHandler struct {
	batcher *Batcher
}

// NewActivityHandler creates the ingestion handler for b.
func NewActivityHandler(b *Batcher) *ActivityHandler {
	return &ActivityHandler{batcher: b}
}

// Handle marks the actor active at the event timestamp. Re-delivery is
// harmless because timestamps are max-wins.
func (h *ActivityHandler) Handle(_ context.Context, ev events.ActivityEvent) error {
	switch ev.Type {
	case events.TypePresencePing, events.TypePostCreated, events.TypeLiked, events.TypeCommented:
		h.batcher.MarkActive(ev.ActorID, ev.Timestamp)
	}
	return nil
}

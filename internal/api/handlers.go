// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package api

import (
	"context"
	"time"

	"github.com/tomtom215/pulse/internal/eventprocessor"
	"github.com/tomtom215/pulse/internal/metrics"
	"github.com/tomtom215/pulse/internal/search"
)

// Searcher runs search queries.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (search.Result, error)
}

// MetricsSource provides the event counters.
type MetricsSource interface {
	Snapshot() metrics.Snapshot
}

// PresenceSource reports the in-process last-active time of a user.
type PresenceSource interface {
	LastActive(userID string) (time.Time, bool)
}

// PresenceStore reads last-active times persisted by earlier flushes.
type PresenceStore interface {
	LastActive(ctx context.Context, userID string) (time.Time, error)
}

// DeadLetterStore is the DLQ as seen by the admin endpoints.
type DeadLetterStore interface {
	List() []*eventprocessor.DeadLetter
	Get(id string) *eventprocessor.DeadLetter
	Remove(id string) bool
	Stats() eventprocessor.DLQStats
}

// ReadinessCheck is one dependency probed by /health/ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the HTTP API. Nil dependencies disable their endpoints
// with 503.
type Handler struct {
	search        Searcher
	metrics       MetricsSource
	presence      PresenceSource
	presenceStore PresenceStore
	dlq           DeadLetterStore
	checks        []ReadinessCheck

	checkTimeout time.Duration
	startTime    time.Time
}

// HandlerDeps are the collaborators of a Handler.
type HandlerDeps struct {
	Search        Searcher
	Metrics       MetricsSource
	Presence      PresenceSource
	PresenceStore PresenceStore
	DLQ           DeadLetterStore
	Checks        []ReadinessCheck

	// CheckTimeout bounds each readiness check. Default: 2s
	CheckTimeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	if deps.CheckTimeout <= 0 {
		deps.CheckTimeout = 2 * time.Second
	}
	return &Handler{
		search:        deps.Search,
		metrics:       deps.Metrics,
		presence:      deps.Presence,
		presenceStore: deps.PresenceStore,
		dlq:           deps.DLQ,
		checks:        deps.Checks,
		checkTimeout:  deps.CheckTimeout,
		startTime:     time.Now(),
	}
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package metrics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/pulse/internal/cache"
	"github.com/tomtom215/pulse/internal/events"
)

// Snapshot is a point-in-time copy of the aggregator counters.
type Snapshot struct {
	EventsReceived uint64                      `json:"eventsReceived"`
	EventsFailed   uint64                      `json:"eventsFailed"`
	PerType        map[events.EventType]uint64 `json:"perType"`
	PerTypeFailed  map[events.EventType]uint64 `json:"perTypeFailed"`
	IndexConflicts uint64                      `json:"indexConflicts"`
	TakenAt        time.Time                   `json:"takenAt"`
}

// Aggregator counts processed and failed events per type. Counters are
// process-local and start from zero.
//
// As an ingestion handler it is idempotent: a (partition, offset) at or below
// the partition's high-water mark has already been counted.
type Aggregator struct {
	received  atomic.Uint64
	failed    atomic.Uint64
	conflicts atomic.Uint64

	// Keys are fixed at construction; only the counters change.
	perType       map[events.EventType]*atomic.Uint64
	perTypeFailed map[events.EventType]*atomic.Uint64

	hwMu      sync.Mutex
	highWater map[int32]int64

	failures *cache.LRUCache
}

// NewAggregator creates an Aggregator with counters for every event type.
func NewAggregator() *Aggregator {
	a := &Aggregator{
		perType:       make(map[events.EventType]*atomic.Uint64, len(events.AllTypes)),
		perTypeFailed: make(map[events.EventType]*atomic.Uint64, len(events.AllTypes)),
		highWater:     make(map[int32]int64),
		failures:      cache.NewLRUCache(50000, time.Hour),
	}
	for _, t := range events.AllTypes {
		a.perType[t] = new(atomic.Uint64)
		a.perTypeFailed[t] = new(atomic.Uint64)
	}
	return a
}

// RecordReceived counts one received event of type t.
func (a *Aggregator) RecordReceived(t events.EventType) {
	a.received.Add(1)
	if c, ok := a.perType[t]; ok {
		c.Add(1)
	}
	EventsReceived.WithLabelValues(string(t)).Inc()
}

// RecordFailed counts one permanently failed event of type t.
func (a *Aggregator) RecordFailed(t events.EventType) {
	a.failed.Add(1)
	if c, ok := a.perTypeFailed[t]; ok {
		c.Add(1)
	}
	EventsFailed.WithLabelValues(string(t)).Inc()
}

// RecordFailedAt counts a failure of handler for ev at most once per
// (partition, offset, handler), so a re-delivered event that fails again is
// not counted twice.
func (a *Aggregator) RecordFailedAt(ev events.ActivityEvent, handler string) {
	key := fmt.Sprintf("%d:%d:%s", ev.Partition, ev.Offset, handler)
	if a.failures.IsDuplicate(key) {
		return
	}
	a.RecordFailed(ev.Type)
}

// RecordIndexConflict counts a stale index write that was discarded.
func (a *Aggregator) RecordIndexConflict() {
	a.conflicts.Add(1)
}

// Handle is the ingestion handler: it counts ev once per stream offset.
func (a *Aggregator) Handle(_ context.Context, ev events.ActivityEvent) error {
	if !a.advance(ev.Partition, ev.Offset) {
		return nil
	}
	a.RecordReceived(ev.Type)
	return nil
}

// advance moves the partition's high-water mark to offset. It returns false
// when offset was already counted.
func (a *Aggregator) advance(partition int32, offset int64) bool {
	a.hwMu.Lock()
	defer a.hwMu.Unlock()

	if hw, ok := a.highWater[partition]; ok && offset <= hw {
		return false
	}
	a.highWater[partition] = offset
	return true
}

// Snapshot returns a copy of the counters. The maps are freshly allocated.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		EventsReceived: a.received.Load(),
		EventsFailed:   a.failed.Load(),
		PerType:        make(map[events.EventType]uint64, len(a.perType)),
		PerTypeFailed:  make(map[events.EventType]uint64, len(a.perTypeFailed)),
		IndexConflicts: a.conflicts.Load(),
		TakenAt:        time.Now().UTC(),
	}
	for t, c := range a.perType {
		s.PerType[t] = c.Load()
	}
	for t, c := range a.perTypeFailed {
		s.PerTypeFailed[t] = c.Load()
	}
	return s
}

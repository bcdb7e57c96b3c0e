// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/pulse/internal/cache"
	"github.com/tomtom215/pulse/internal/events"
	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/metrics"
)

// DeadLetter is an event a handler could not process within its retry budget.
type DeadLetter struct {
	ID           string           `json:"id"`
	Handler      string           `json:"handler"`
	EventType    events.EventType `json:"eventType"`
	ActorID      string           `json:"actorId"`
	TargetID     string           `json:"targetId,omitempty"`
	Partition    int32            `json:"partition"`
	Offset       int64            `json:"offset"`
	Payload      json.RawMessage  `json:"payload,omitempty"`
	Error        string           `json:"error"`
	Attempts     int              `json:"attempts"`
	FirstFailure time.Time        `json:"firstFailure"`
}

// DLQStats holds runtime statistics for the DLQ.
type DLQStats struct {
	Entries      int            `json:"entries"`
	TotalAdded   int64          `json:"totalAdded"`
	TotalRemoved int64          `json:"totalRemoved"`
	TotalExpired int64          `json:"totalExpired"`
	OldestEntry  time.Time      `json:"oldestEntry,omitempty"`
	ByHandler    map[string]int `json:"byHandler"`
}

// DeadLetterMirror copies dead letters to the broker.
type DeadLetterMirror interface {
	PublishDeadLetter(ctx context.Context, dl *DeadLetter) error
}

// DLQ is the bounded in-memory dead-letter store, ordered by first failure.
// When full, the oldest entry is evicted.
type DLQ struct {
	cfg     DLQConfig
	entries *cache.MinHeap[*DeadLetter]
	seen    *cache.LRUCache
	mirror  DeadLetterMirror
	now     func() time.Time

	totalAdded   atomic.Int64
	totalRemoved atomic.Int64
	totalExpired atomic.Int64
}

// NewDLQ creates a dead-letter store. mirror may be nil.
func NewDLQ(cfg DLQConfig, mirror DeadLetterMirror) *DLQ {
	def := DefaultDLQConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.RetentionTime <= 0 {
		cfg.RetentionTime = def.RetentionTime
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = def.MirrorTimeout
	}
	return &DLQ{
		cfg:     cfg,
		entries: cache.NewMinHeap[*DeadLetter](cfg.MaxEntries),
		seen:    cache.NewLRUCache(cfg.MaxEntries, cfg.RetentionTime),
		mirror:  mirror,
		now:     time.Now,
	}
}

// deadLetterKey identifies one handler failing one stream position.
func deadLetterKey(partition int32, offset int64, handler string) string {
	return fmt.Sprintf("%d:%d:%s", partition, offset, handler)
}

// DeadLetter records that handler gave up on ev after attempts tries. A
// redelivered event that fails the same handler again is recorded once.
func (q *DLQ) DeadLetter(ev events.ActivityEvent, handler string, attempts int, err error) {
	if q.seen.IsDuplicate(deadLetterKey(ev.Partition, ev.Offset, handler)) {
		logging.Debug().
			Str("handler", handler).
			Int32("partition", ev.Partition).
			Int64("offset", ev.Offset).
			Msg("Event already dead-lettered, skipping duplicate")
		return
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	q.Add(&DeadLetter{
		ID:           uuid.NewString(),
		Handler:      handler,
		EventType:    ev.Type,
		ActorID:      ev.ActorID,
		TargetID:     ev.TargetID,
		Partition:    ev.Partition,
		Offset:       ev.Offset,
		Payload:      ev.RawPayload,
		Error:        msg,
		Attempts:     attempts,
		FirstFailure: q.now(),
	})
}

// Add stores dl and mirrors it to the broker when a mirror is configured.
func (q *DLQ) Add(dl *DeadLetter) {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.FirstFailure.IsZero() {
		dl.FirstFailure = q.now()
	}

	if evicted := q.entries.Push(dl.ID, dl, dl.FirstFailure); evicted != nil {
		q.totalExpired.Add(1)
		logging.Warn().Str("id", evicted.Key).Msg("DLQ full, evicted oldest dead letter")
	}
	q.totalAdded.Add(1)
	metrics.RecordDeadLetter(dl.Handler, q.entries.Len())

	logging.Error().
		Str("id", dl.ID).
		Str("handler", dl.Handler).
		Str("type", string(dl.EventType)).
		Int32("partition", dl.Partition).
		Int64("offset", dl.Offset).
		Int("attempts", dl.Attempts).
		Str("error", dl.Error).
		Msg("Event dead-lettered")

	if q.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.MirrorTimeout)
	defer cancel()
	if err := q.mirror.PublishDeadLetter(ctx, dl); err != nil {
		logging.Warn().Err(err).Str("id", dl.ID).Msg("Failed to mirror dead letter to broker")
	}
}

// Get returns the entry with id, or nil.
func (q *DLQ) Get(id string) *DeadLetter {
	e := q.entries.Get(id)
	if e == nil {
		return nil
	}
	return e.Value
}

// List returns every entry, oldest first.
func (q *DLQ) List() []*DeadLetter {
	all := q.entries.All()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	out := make([]*DeadLetter, len(all))
	for i, e := range all {
		out[i] = e.Value
	}
	return out
}

// Remove deletes the entry with id and reports whether it existed. A later
// failure at the same position is recorded again.
func (q *DLQ) Remove(id string) bool {
	e := q.entries.Remove(id)
	if e == nil {
		return false
	}
	q.seen.Remove(deadLetterKey(e.Value.Partition, e.Value.Offset, e.Value.Handler))
	q.totalRemoved.Add(1)
	metrics.DLQSize.Set(float64(q.entries.Len()))
	return true
}

// Cleanup removes entries older than the retention time and returns how many.
func (q *DLQ) Cleanup() int {
	removed := q.entries.PopBefore(q.now().Add(-q.cfg.RetentionTime))
	if len(removed) > 0 {
		q.totalExpired.Add(int64(len(removed)))
		metrics.DLQSize.Set(float64(q.entries.Len()))
	}
	return len(removed)
}

// Stats returns current DLQ statistics.
func (q *DLQ) Stats() DLQStats {
	stats := DLQStats{
		TotalAdded:   q.totalAdded.Load(),
		TotalRemoved: q.totalRemoved.Load(),
		TotalExpired: q.totalExpired.Load(),
		ByHandler:    make(map[string]int),
	}
	for _, e := range q.entries.All() {
		stats.Entries++
		stats.ByHandler[e.Value.Handler]++
		if stats.OldestEntry.IsZero() || e.Timestamp.Before(stats.OldestEntry) {
			stats.OldestEntry = e.Timestamp
		}
	}
	return stats
}

// Serve runs retention cleanup until ctx is cancelled.
func (q *DLQ) Serve(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := q.Cleanup(); n > 0 {
				logging.Info().Int("removed", n).Msg("Expired dead letters removed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (q *DLQ) String() string {
	return "dlq-cleanup"
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package metrics

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/pulse/internal/events"
)

func TestAggregator_RecordAndSnapshot(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.RecordReceived(events.TypeLiked)
	a.RecordReceived(events.TypeLiked)
	a.RecordReceived(events.TypePresencePing)
	a.RecordFailed(events.TypeLiked)

	s := a.Snapshot()
	if s.EventsReceived != 3 {
		t.Errorf("EventsReceived = %d, want 3", s.EventsReceived)
	}
	if s.EventsFailed != 1 {
		t.Errorf("EventsFailed = %d, want 1", s.EventsFailed)
	}
	if s.PerType[events.TypeLiked] != 2 {
		t.Errorf("PerType[liked] = %d, want 2", s.PerType[events.TypeLiked])
	}
	if s.PerTypeFailed[events.TypeLiked] != 1 {
		t.Errorf("PerTypeFailed[liked] = %d, want 1", s.PerTypeFailed[events.TypeLiked])
	}
	if len(s.PerType) != len(events.AllTypes) {
		t.Errorf("PerType has %d keys, want %d", len(s.PerType), len(events.AllTypes))
	}
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.RecordReceived(events.TypeCommented)
	s := a.Snapshot()

	s.PerType[events.TypeCommented] = 100
	a.RecordReceived(events.TypeCommented)

	if s.EventsReceived != 1 {
		t.Errorf("snapshot changed after later increments: %d", s.EventsReceived)
	}
	if got := a.Snapshot().PerType[events.TypeCommented]; got != 2 {
		t.Errorf("live counter = %d, want 2 (snapshot mutation leaked)", got)
	}
}

func TestAggregator_HandleIsIdempotentPerOffset(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	ctx := context.Background()
	ev := events.ActivityEvent{Type: events.TypePostCreated}

	for _, off := range []int64{40, 41, 42, 42, 41, 42} {
		if err := a.Handle(ctx, ev.WithPosition(0, off)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}
	// Another partition has its own high-water mark.
	_ = a.Handle(ctx, ev.WithPosition(1, 42))

	s := a.Snapshot()
	if s.EventsReceived != 4 {
		t.Errorf("EventsReceived = %d, want 4 (re-deliveries must not count)", s.EventsReceived)
	}
}

func TestAggregator_RecordFailedAtDeduplicates(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	ev := events.ActivityEvent{Type: events.TypeEntityChanged}.WithPosition(2, 9)

	a.RecordFailedAt(ev, "indexer")
	a.RecordFailedAt(ev, "indexer")
	a.RecordFailedAt(ev, "fanout")

	if got := a.Snapshot().EventsFailed; got != 2 {
		t.Errorf("EventsFailed = %d, want 2", got)
	}
}

func TestAggregator_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				a.RecordReceived(events.TypePresencePing)
				_ = a.Snapshot()
			}
		}()
	}
	wg.Wait()

	if got := a.Snapshot().PerType[events.TypePresencePing]; got != 8000 {
		t.Errorf("PerType[presence_ping] = %d, want 8000", got)
	}
}

func TestAggregator_IndexConflicts(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.RecordIndexConflict()
	a.RecordIndexConflict()
	if got := a.Snapshot().IndexConflicts; got != 2 {
		t.Errorf("IndexConflicts = %d, want 2", got)
	}
}

func TestRecordPresenceFlush(t *testing.T) {
	before := testutil.ToFloat64(PresenceFlushes.WithLabelValues("empty"))
	RecordPresenceFlush(0, nil)
	after := testutil.ToFloat64(PresenceFlushes.WithLabelValues("empty"))
	if after-before != 1 {
		t.Errorf("empty flush counter delta = %v, want 1", after-before)
	}
}

func TestRecordFrame(t *testing.T) {
	before := testutil.ToFloat64(WSMessages.WithLabelValues("dropped"))
	RecordFrame(false)
	if delta := testutil.ToFloat64(WSMessages.WithLabelValues("dropped")) - before; delta != 1 {
		t.Errorf("dropped delta = %v, want 1", delta)
	}
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/pulse/internal/events"
)

type recordingMirror struct {
	mu   sync.Mutex
	got  []*DeadLetter
	fail error
}

func (m *recordingMirror) PublishDeadLetter(_ context.Context, dl *DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, dl)
	return m.fail
}

func TestDLQ_AddGetRemove(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{}
	q := NewDLQ(DLQConfig{MaxEntries: 10}, mirror)

	ev := events.ActivityEvent{Type: events.TypeCommented, ActorID: "u1", Partition: 2, Offset: 9}
	q.DeadLetter(ev, "fanout", 3, errors.New("queue closed"))

	list := q.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1", len(list))
	}
	dl := list[0]
	if dl.ID == "" || dl.Handler != "fanout" || dl.Partition != 2 || dl.Offset != 9 || dl.Error != "queue closed" {
		t.Errorf("entry = %+v", dl)
	}
	if q.Get(dl.ID) != dl {
		t.Error("Get() did not return the stored entry")
	}
	if len(mirror.got) != 1 {
		t.Errorf("mirrored = %d, want 1", len(mirror.got))
	}

	if !q.Remove(dl.ID) {
		t.Error("Remove() = false, want true")
	}
	if q.Remove(dl.ID) {
		t.Error("second Remove() = true, want false")
	}
	stats := q.Stats()
	if stats.Entries != 0 || stats.TotalAdded != 1 || stats.TotalRemoved != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestDLQ_EvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	q := NewDLQ(DLQConfig{MaxEntries: 2}, nil)
	base := time.Now()
	for i := 0; i < 3; i++ {
		q.Add(&DeadLetter{
			ID:           string(rune('a' + i)),
			Handler:      "indexer",
			FirstFailure: base.Add(time.Duration(i) * time.Second),
		})
	}

	if q.Get("a") != nil {
		t.Error("oldest entry was not evicted")
	}
	list := q.List()
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "c" {
		t.Errorf("List() = %v, want [b c]", list)
	}
	if got := q.Stats().TotalExpired; got != 1 {
		t.Errorf("TotalExpired = %d, want 1", got)
	}
}

func TestDLQ_Cleanup(t *testing.T) {
	t.Parallel()

	q := NewDLQ(DLQConfig{MaxEntries: 10, RetentionTime: time.Hour}, nil)
	now := time.Now()
	q.now = func() time.Time { return now }

	q.Add(&DeadLetter{ID: "old", Handler: "presence", FirstFailure: now.Add(-2 * time.Hour)})
	q.Add(&DeadLetter{ID: "new", Handler: "presence", FirstFailure: now.Add(-time.Minute)})

	if n := q.Cleanup(); n != 1 {
		t.Errorf("Cleanup() = %d, want 1", n)
	}
	if q.Get("new") == nil {
		t.Error("recent entry removed by cleanup")
	}
	if got := q.Stats().ByHandler["presence"]; got != 1 {
		t.Errorf("ByHandler[presence] = %d, want 1", got)
	}
}

func TestDLQ_RedeliveredFailureRecordedOnce(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{}
	q := NewDLQ(DLQConfig{}, mirror)
	ev := events.ActivityEvent{Type: events.TypeCommented, ActorID: "u1", Partition: 1, Offset: 42}

	q.DeadLetter(ev, "indexer", 3, errors.New("index unavailable"))
	q.DeadLetter(ev, "indexer", 3, errors.New("index unavailable"))
	if got := q.Stats().Entries; got != 1 {
		t.Fatalf("Entries after redelivery = %d, want 1", got)
	}
	if got := len(mirror.got); got != 1 {
		t.Errorf("mirrored %d dead letters, want 1", got)
	}

	// Another handler failing the same event, or the same handler failing
	// another offset, is a separate entry.
	q.DeadLetter(ev, "fanout", 3, errors.New("queue closed"))
	q.DeadLetter(ev.WithPosition(1, 43), "indexer", 3, errors.New("index unavailable"))
	if got := q.Stats().Entries; got != 3 {
		t.Fatalf("Entries = %d, want 3", got)
	}

	// Once an operator removes the entry, a new failure is recorded again.
	var id string
	for _, dl := range q.List() {
		if dl.Handler == "indexer" && dl.Offset == 42 {
			id = dl.ID
		}
	}
	if !q.Remove(id) {
		t.Fatalf("Remove(%q) = false", id)
	}
	q.DeadLetter(ev, "indexer", 3, errors.New("index unavailable"))
	if got := q.Stats().Entries; got != 3 {
		t.Errorf("Entries after remove and re-fail = %d, want 3", got)
	}
}

func TestDLQ_MirrorFailureKeepsEntry(t *testing.T) {
	t.Parallel()

	q := NewDLQ(DLQConfig{}, &recordingMirror{fail: errors.New("broker down")})
	q.DeadLetter(events.ActivityEvent{Type: events.TypeLiked}, "metrics", 1, errors.New("x"))

	if got := q.Stats().Entries; got != 1 {
		t.Errorf("Entries = %d, want 1", got)
	}
}

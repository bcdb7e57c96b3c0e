// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache_IsDuplicate(t *testing.T) {
	t.Parallel()

	c := NewLRUCache(10, time.Minute)
	if c.IsDuplicate("p0:42:metrics") {
		t.Error("first sighting reported as duplicate")
	}
	if !c.IsDuplicate("p0:42:metrics") {
		t.Error("second sighting not reported as duplicate")
	}
	if c.IsDuplicate("p0:43:metrics") {
		t.Error("different key reported as duplicate")
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	t.Parallel()

	c := NewLRUCache(10, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.IsDuplicate("k")
	now = now.Add(2 * time.Minute)
	if c.IsDuplicate("k") {
		t.Error("expired key reported as duplicate")
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewLRUCache(2, time.Minute)
	c.IsDuplicate("a")
	c.IsDuplicate("b")
	c.IsDuplicate("a") // a becomes most recent
	c.IsDuplicate("c") // evicts b

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if !c.IsDuplicate("a") {
		t.Error("a should still be present")
	}
	if c.IsDuplicate("b") {
		t.Error("b should have been evicted")
	}
}

func TestLRUCache_Remove(t *testing.T) {
	t.Parallel()

	c := NewLRUCache(10, time.Minute)
	c.IsDuplicate("k")
	c.Remove("k")
	if c.IsDuplicate("k") {
		t.Error("removed key reported as duplicate")
	}
}

func TestMinHeap_OrderAndEviction(t *testing.T) {
	t.Parallel()

	base := time.Unix(1000, 0)
	h := NewMinHeap[string](3)
	h.Push("c", "third", base.Add(3*time.Second))
	h.Push("a", "first", base.Add(1*time.Second))
	h.Push("b", "second", base.Add(2*time.Second))

	evicted := h.Push("d", "fourth", base.Add(4*time.Second))
	if evicted == nil || evicted.Key != "a" {
		t.Fatalf("evicted = %v, want a", evicted)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}

	var order []string
	for e := h.Pop(); e != nil; e = h.Pop() {
		order = append(order, e.Key)
	}
	if fmt.Sprint(order) != "[b c d]" {
		t.Errorf("pop order = %v, want [b c d]", order)
	}
}

func TestMinHeap_GetRemoveReplace(t *testing.T) {
	t.Parallel()

	base := time.Unix(1000, 0)
	h := NewMinHeap[int](0)
	h.Push("x", 1, base)
	h.Push("y", 2, base.Add(time.Second))

	h.Push("x", 10, base.Add(2*time.Second)) // replace moves x behind y
	if got := h.Get("x"); got == nil || got.Value != 10 {
		t.Fatalf("Get(x) = %v, want value 10", got)
	}
	if first := h.Pop(); first.Key != "y" {
		t.Errorf("Pop() = %s, want y", first.Key)
	}

	if removed := h.Remove("x"); removed == nil {
		t.Error("Remove(x) = nil")
	}
	if h.Remove("x") != nil {
		t.Error("second Remove(x) should return nil")
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

func TestMinHeap_PopBefore(t *testing.T) {
	t.Parallel()

	base := time.Unix(1000, 0)
	h := NewMinHeap[int](0)
	for i := 0; i < 5; i++ {
		h.Push(fmt.Sprint(i), i, base.Add(time.Duration(i)*time.Second))
	}

	old := h.PopBefore(base.Add(2 * time.Second))
	if len(old) != 2 || old[0].Key != "0" || old[1].Key != "1" {
		t.Errorf("PopBefore = %v, want keys 0 and 1", old)
	}
	if h.Len() != 3 || len(h.All()) != 3 {
		t.Errorf("remaining = %d, want 3", h.Len())
	}
}

func TestMinHeap_Concurrent(t *testing.T) {
	t.Parallel()

	h := NewMinHeap[int](100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Push(fmt.Sprintf("%d-%d", g, i), i, time.Now())
			}
		}(g)
	}
	wg.Wait()

	if h.Len() != 100 {
		t.Errorf("Len() = %d, want 100", h.Len())
	}
}

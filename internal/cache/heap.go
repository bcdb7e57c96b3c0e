// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package cache

import (
	"container/heap"
	"sync"
	"time"
)

// HeapEntry is an entry in a MinHeap keyed by string and ordered by Timestamp.
type HeapEntry[T any] struct {
	Key       string
	Value     T
	Timestamp time.Time
	index     int
}

// MinHeap is a thread-safe min-heap ordered by timestamp with O(1) key lookup.
// When maxLen is positive, pushing past capacity evicts the oldest entry.
// The dead-letter store uses it to keep the newest failures.
type MinHeap[T any] struct {
	mu     sync.RWMutex
	items  entries[T]
	byKey  map[string]*HeapEntry[T]
	maxLen int
}

// NewMinHeap creates a heap holding at most maxLen entries (0 = unbounded).
func NewMinHeap[T any](maxLen int) *MinHeap[T] {
	return &MinHeap[T]{
		byKey:  make(map[string]*HeapEntry[T]),
		maxLen: maxLen,
	}
}

// Push inserts or replaces key. It returns the evicted entry, if any.
func (h *MinHeap[T]) Push(key string, value T, ts time.Time) *HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.byKey[key]; ok {
		e.Value = value
		e.Timestamp = ts
		heap.Fix(&h.items, e.index)
		return nil
	}

	e := &HeapEntry[T]{Key: key, Value: value, Timestamp: ts}
	heap.Push(&h.items, e)
	h.byKey[key] = e

	if h.maxLen > 0 && h.items.Len() > h.maxLen {
		oldest, _ := heap.Pop(&h.items).(*HeapEntry[T])
		delete(h.byKey, oldest.Key)
		return oldest
	}
	return nil
}

// Pop removes and returns the oldest entry, or nil when empty.
func (h *MinHeap[T]) Pop() *HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.items.Len() == 0 {
		return nil
	}
	e, _ := heap.Pop(&h.items).(*HeapEntry[T])
	delete(h.byKey, e.Key)
	return e
}

// Get returns the entry for key, or nil.
func (h *MinHeap[T]) Get(key string) *HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byKey[key]
}

// Remove deletes key and returns the removed entry, or nil.
func (h *MinHeap[T]) Remove(key string) *HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.byKey[key]
	if !ok {
		return nil
	}
	heap.Remove(&h.items, e.index)
	delete(h.byKey, key)
	return e
}

// Len returns the number of entries.
func (h *MinHeap[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.items.Len()
}

// All returns a copy of the entries in no particular order.
func (h *MinHeap[T]) All() []*HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*HeapEntry[T], len(h.items))
	copy(out, h.items)
	return out
}

// PopBefore removes and returns every entry older than t, oldest first.
func (h *MinHeap[T]) PopBefore(t time.Time) []*HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*HeapEntry[T]
	for h.items.Len() > 0 && h.items[0].Timestamp.Before(t) {
		e, _ := heap.Pop(&h.items).(*HeapEntry[T])
		delete(h.byKey, e.Key)
		out = append(out, e)
	}
	return out
}

// entries implements heap.Interface.
type entries[T any] []*HeapEntry[T]

func (s entries[T]) Len() int           { return len(s) }
func (s entries[T]) Less(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) }

func (s entries[T]) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].index = i
	s[j].index = j
}

func (s *entries[T]) Push(x any) {
	e, _ := x.(*HeapEntry[T])
	e.index = len(*s)
	*s = append(*s, e)
}

func (s *entries[T]) Pop() any {
	old := *s
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*s = old[:n-1]
	return e
}

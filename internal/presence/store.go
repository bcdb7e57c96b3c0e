// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package presence

import (
	"context"
	"sync"
	"time"
)

// Record is one user's last-active timestamp as written to the fast store.
type Record struct {
	UserID       string
	LastActiveAt time.Time
}

// Store is the fast key-value store that holds last-active timestamps.
type Store interface {
	// WriteBatch writes all records in one round trip.
	WriteBatch(ctx context.Context, records []Record) error

	// LastActive returns the stored timestamp, or the zero time if none.
	LastActive(ctx context.Context, userID string) (time.Time, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// MemoryStore is a Store held in process memory, used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]time.Time
	writes  int
	failErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]time.Time)}
}

// WriteBatch implements Store.
func (s *MemoryStore) WriteBatch(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	for _, r := range records {
		s.values[r.UserID] = r.LastActiveAt
	}
	s.writes++
	return nil
}

// LastActive implements Store.
func (s *MemoryStore) LastActive(_ context.Context, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[userID], nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failErr
}

// Writes returns the number of successful batch writes.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// SetFailure makes every following write fail with err until cleared with nil.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

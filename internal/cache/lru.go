// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package cache provides small concurrent data structures used by the
// pipeline: a bounded TTL de-duplicator and a timestamp-ordered min-heap.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry struct {
	key       string
	expiresAt time.Time
}

// LRUCache remembers recently seen keys for a TTL, evicting the least
// recently used key when full. It is safe for concurrent use.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

// NewLRUCache creates a cache. Non-positive arguments fall back to 10000 entries and 5m.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL. A key that was
// not seen is recorded, so the first call returns false and later calls true.
func (c *LRUCache) IsDuplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e, _ := el.Value.(*lruEntry)
		if now.Before(e.expiresAt) {
			c.order.MoveToFront(el)
			return true
		}
		c.order.Remove(el)
		delete(c.items, key)
	}

	c.items[key] = c.order.PushFront(&lruEntry{key: key, expiresAt: now.Add(c.ttl)})
	for len(c.items) > c.capacity {
		oldest := c.order.Back()
		e, _ := oldest.Value.(*lruEntry)
		c.order.Remove(oldest)
		delete(c.items, e.key)
	}
	return false
}

// Remove forgets key.
func (c *LRUCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of remembered keys, expired ones included.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

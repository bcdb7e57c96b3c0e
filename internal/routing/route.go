// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package routing maps keys to stable buckets. The publisher uses it to pick a
// broker partition and the indexer uses it to pick a worker, so everything
// for one entity or user is handled in order by one consumer.
package routing

import "hash/fnv"

// Bucket returns fnv64a(key) mod n. It returns 0 when n <= 1.
func Bucket(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}

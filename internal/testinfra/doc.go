// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package testinfra starts throwaway containers for integration tests.
//
// Files in this package carry the integration build tag, so the default test
// run never needs Docker:
//
//	go test -tags integration ./internal/presence/...
//
// # Redis
//
//	func TestRedisStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    redis, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.CleanupContainer(t, redis)
//
//	    store, err := presence.NewRedisStore(ctx, presence.DefaultRedisConfig(redis.Addr))
//	    // ...
//	}
//
// Tests are skipped when Docker is unavailable.
package testinfra

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

//go:build integration

package presence

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/pulse/internal/testinfra"
)

func TestRedisStore_WriteBatchAndReadBack(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	redis, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	testinfra.CleanupContainer(t, redis)

	cfg := DefaultRedisConfig(redis.Addr)
	cfg.TTL = time.Minute
	store, err := NewRedisStore(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	at := time.UnixMilli(1_700_000_000_123).UTC()
	records := []Record{
		{UserID: "u1", LastActiveAt: at},
		{UserID: "u2", LastActiveAt: at.Add(time.Second)},
	}
	if err := store.WriteBatch(ctx, records); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	got, err := store.LastActive(ctx, "u1")
	if err != nil {
		t.Fatalf("LastActive() error = %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("LastActive(u1) = %v, want %v", got, at)
	}

	ttl, err := store.client.PTTL(ctx, store.Key("u2")).Result()
	if err != nil {
		t.Fatalf("PTTL error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("PTTL = %v, want (0, 1m]", ttl)
	}

	missing, err := store.LastActive(ctx, "nobody")
	if err != nil || !missing.IsZero() {
		t.Errorf("LastActive(nobody) = %v, %v; want zero, nil", missing, err)
	}
}

func TestRedisStore_BatcherEndToEnd(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	redis, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	testinfra.CleanupContainer(t, redis)

	store, err := NewRedisStore(ctx, DefaultRedisConfig(redis.Addr))
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	b := NewBatcher(Config{}, store)
	b.MarkActive("u7", time.UnixMilli(100))
	b.MarkActive("u7", time.UnixMilli(105))
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, _ := store.LastActive(ctx, "u7")
	if got.UnixMilli() != 105 {
		t.Errorf("stored = %d, want 105", got.UnixMilli())
	}
}

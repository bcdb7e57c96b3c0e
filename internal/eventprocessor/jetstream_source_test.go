// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/pulse/internal/events"
	"github.com/tomtom215/pulse/internal/routing"
)

func startJetStream(t *testing.T) (*EmbeddedServer, jetstream.JetStream) {
	t.Helper()

	srv, err := NewEmbeddedServer(ServerConfig{
		Host:              "127.0.0.1",
		Port:              -1,
		StoreDir:          t.TempDir(),
		JetStreamMaxMem:   64 << 20,
		JetStreamMaxStore: 256 << 20,
	})
	if err != nil {
		t.Fatalf("NewEmbeddedServer: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("nats.Connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream.New: %v", err)
	}

	si, err := NewStreamInitializer(js, DefaultStreamConfig("pulse.events", "pulse.dlq"))
	if err != nil {
		t.Fatalf("NewStreamInitializer: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := si.EnsureStream(ctx); err != nil {
		t.Fatalf("EnsureStream: %v", err)
	}
	if _, err := si.EnsureStream(ctx); err != nil {
		t.Fatalf("second EnsureStream: %v", err)
	}
	return srv, js
}

type seenEvent struct {
	partition int32
	offset    int64
	actor     string
}

func TestJetStreamSource_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}

	srv, js := startJetStream(t)

	pcfg := DefaultPublisherConfig(srv.ClientURL())
	pcfg.Partitions = 2
	pub, err := NewPublisher(pcfg, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() { _ = pub.Close() })

	ctx := context.Background()
	actors := []string{"alice", "alice", "alice", "bob"}
	for _, actor := range actors {
		env, err := events.NewEnvelope(events.TypePresencePing, actor, "", events.PresencePayload{}, time.Now())
		if err != nil {
			t.Fatalf("NewEnvelope: %v", err)
		}
		if err := pub.PublishEnvelope(ctx, actor, env); err != nil {
			t.Fatalf("PublishEnvelope: %v", err)
		}
	}

	scfg := DefaultJetStreamSourceConfig()
	scfg.Partitions = 2
	scfg.FetchWait = time.Second
	src, err := NewJetStreamSource(js, scfg)
	if err != nil {
		t.Fatalf("NewJetStreamSource: %v", err)
	}

	var (
		mu   sync.Mutex
		seen []seenEvent
		done = make(chan struct{})
	)
	gw := NewGateway(GatewayConfig{Retry: testPolicy(1)}, src, nil, nil)
	gw.Register("record", HandlerFunc(func(_ context.Context, ev events.ActivityEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, seenEvent{partition: ev.Partition, offset: ev.Offset, actor: ev.ActorID})
		if len(seen) == len(actors) {
			close(done)
		}
		return nil
	}))

	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- gw.Serve(runCtx) }()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
	cancel()
	<-errCh

	mu.Lock()
	defer mu.Unlock()

	last := map[int32]int64{}
	partitionOf := map[string]int32{}
	for _, s := range seen {
		if s.offset <= last[s.partition] {
			t.Errorf("partition %d offsets out of order: %d after %d", s.partition, s.offset, last[s.partition])
		}
		last[s.partition] = s.offset
		if p, ok := partitionOf[s.actor]; ok && p != s.partition {
			t.Errorf("actor %s seen on partitions %d and %d", s.actor, p, s.partition)
		}
		partitionOf[s.actor] = s.partition
	}
	if want := int32(routing.Bucket("alice", 2)); partitionOf["alice"] != want {
		t.Errorf("alice partition = %d, want %d", partitionOf["alice"], want)
	}
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
)

// fakeJetStream records stream calls. Returned streams are nil; the
// initializer only passes them through.
type fakeJetStream struct {
	exists    bool
	lookupErr error
	created   []jetstream.StreamConfig
	updated   []jetstream.StreamConfig
}

func (f *fakeJetStream) Stream(_ context.Context, _ string) (jetstream.Stream, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if !f.exists {
		return nil, jetstream.ErrStreamNotFound
	}
	return nil, nil
}

func (f *fakeJetStream) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.created = append(f.created, cfg)
	f.exists = true
	return nil, nil
}

func (f *fakeJetStream) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.updated = append(f.updated, cfg)
	return nil, nil
}

func TestStreamInitializer_CreateThenUpdate(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{}
	si, err := NewStreamInitializer(js, DefaultStreamConfig("pulse.events", "pulse.dlq"))
	if err != nil {
		t.Fatalf("NewStreamInitializer: %v", err)
	}

	ctx := context.Background()
	if _, err := si.EnsureStream(ctx); err != nil {
		t.Fatalf("first EnsureStream: %v", err)
	}
	if _, err := si.EnsureStream(ctx); err != nil {
		t.Fatalf("second EnsureStream: %v", err)
	}

	if len(js.created) != 1 || len(js.updated) != 1 {
		t.Fatalf("created = %d, updated = %d, want 1 and 1", len(js.created), len(js.updated))
	}
	cfg := js.created[0]
	if cfg.Name != "PULSE_ACTIVITY" {
		t.Errorf("stream name = %s", cfg.Name)
	}
	if len(cfg.Subjects) != 2 || cfg.Subjects[0] != "pulse.events.*" || cfg.Subjects[1] != "pulse.dlq.*" {
		t.Errorf("subjects = %v", cfg.Subjects)
	}
	if !si.IsHealthy(ctx) {
		t.Error("IsHealthy() = false after creation")
	}
}

func TestStreamInitializer_LookupError(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{lookupErr: errors.New("connection closed")}
	si, err := NewStreamInitializer(js, DefaultStreamConfig("a", "b"))
	if err != nil {
		t.Fatalf("NewStreamInitializer: %v", err)
	}
	if _, err := si.EnsureStream(context.Background()); err == nil {
		t.Error("EnsureStream() error = nil, want lookup failure")
	}
	if len(js.created) != 0 {
		t.Error("stream created despite lookup failure")
	}
}

func TestNewStreamInitializer_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewStreamInitializer(nil, DefaultStreamConfig("a", "b")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil js error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewStreamInitializer(&fakeJetStream{}, StreamConfig{Name: "X"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("no subjects error = %v, want ErrInvalidConfig", err)
	}
}

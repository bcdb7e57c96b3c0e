// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/pulse/internal/config"
	"github.com/tomtom215/pulse/internal/eventprocessor"
	"github.com/tomtom215/pulse/internal/logging"
)

// NATSComponents holds the broker-side components for lifecycle management.
type NATSComponents struct {
	server    *eventprocessor.EmbeddedServer
	conn      *natsgo.Conn
	js        jetstream.JetStream
	stream    *eventprocessor.StreamInitializer
	publisher *eventprocessor.Publisher
}

// natsRequired reports whether the configuration needs a broker connection:
// the JetStream source always does, Kafka only when dead letters are mirrored.
func natsRequired(cfg *config.Config) bool {
	return cfg.Ingest.Source == "jetstream" || cfg.Ingest.DLQMirror
}

// InitNATS starts the embedded server when configured, connects, ensures the
// activity stream and creates the dead-letter mirror publisher.
func InitNATS(ctx context.Context, cfg *config.Config) (*NATSComponents, error) {
	components := &NATSComponents{}
	natsURL := cfg.NATS.URL

	// Step 1: Embedded server for single-node mode
	if cfg.NATS.EmbeddedServer {
		serverCfg := eventprocessor.DefaultServerConfig()
		serverCfg.StoreDir = cfg.NATS.StoreDir
		serverCfg.JetStreamMaxMem = cfg.NATS.MaxMemory
		serverCfg.JetStreamMaxStore = cfg.NATS.MaxStore

		server, err := eventprocessor.NewEmbeddedServer(serverCfg)
		if err != nil {
			return nil, err
		}
		components.server = server
		natsURL = server.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", natsURL).Msg("Using external NATS server")
	}

	// Step 2: Connect
	nc, err := natsgo.Connect(natsURL,
		natsgo.Name("pulse"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	components.conn = nc

	// Step 3: JetStream stream
	js, err := jetstream.New(nc)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	components.js = js

	streamCfg := eventprocessor.DefaultStreamConfig(cfg.NATS.SubjectPrefix, cfg.NATS.DLQPrefix)
	streamCfg.Name = cfg.NATS.Stream
	if cfg.NATS.StreamRetention > 0 {
		streamCfg.MaxAge = cfg.NATS.StreamRetention
	}
	si, err := eventprocessor.NewStreamInitializer(js, streamCfg)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("create stream initializer: %w", err)
	}
	components.stream = si

	stream, err := si.EnsureStream(ctx)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	info := stream.CachedInfo()
	logging.Info().
		Str("name", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Dur("max_age", info.Config.MaxAge).
		Msg("JetStream stream ready")

	// Step 4: Dead-letter mirror
	if cfg.Ingest.DLQMirror {
		pubCfg := eventprocessor.DefaultPublisherConfig(natsURL)
		pubCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		pubCfg.DLQPrefix = cfg.NATS.DLQPrefix
		pubCfg.Partitions = cfg.Ingest.Partitions

		publisher, err := eventprocessor.NewPublisher(pubCfg, eventprocessor.NewWatermillLogger())
		if err != nil {
			components.Shutdown(context.Background())
			return nil, fmt.Errorf("create DLQ mirror publisher: %w", err)
		}
		components.publisher = publisher
		logging.Info().Str("prefix", cfg.NATS.DLQPrefix).Msg("Dead letters mirrored to NATS")
	}

	return components, nil
}

// Source builds the JetStream ingestion source.
func (c *NATSComponents) Source(cfg *config.Config) (*eventprocessor.JetStreamSource, error) {
	srcCfg := eventprocessor.DefaultJetStreamSourceConfig()
	srcCfg.Stream = cfg.NATS.Stream
	srcCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	srcCfg.Partitions = cfg.Ingest.Partitions
	srcCfg.DurablePrefix = cfg.NATS.DurablePrefix
	if cfg.NATS.FetchWait > 0 {
		srcCfg.FetchWait = cfg.NATS.FetchWait
	}
	if cfg.NATS.AckWait > 0 {
		srcCfg.AckWait = cfg.NATS.AckWait
	}
	return eventprocessor.NewJetStreamSource(c.js, srcCfg)
}

// Publisher returns the dead-letter mirror, or nil when mirroring is off.
func (c *NATSComponents) Publisher() *eventprocessor.Publisher {
	if c == nil {
		return nil
	}
	return c.publisher
}

// Ready is the readiness check for the broker.
func (c *NATSComponents) Ready(ctx context.Context) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return errors.New("nats: not connected")
	}
	if !c.stream.IsHealthy(ctx) {
		return errors.New("nats: stream unavailable")
	}
	return nil
}

// Shutdown closes the publisher, the connection and the embedded server.
func (c *NATSComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing NATS publisher")
		}
	}
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			logging.Warn().Err(err).Msg("Error draining NATS connection")
		}
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}
	logging.Info().Msg("NATS components shut down")
}

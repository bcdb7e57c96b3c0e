// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/pulse/internal/retry"
)

// PartitionKeyHeader carries the routing key of a published envelope.
const PartitionKeyHeader = "Pulse-Partition-Key"

// SubjectFor returns the subject of partition p under prefix.
func SubjectFor(prefix string, p int) string {
	return prefix + "." + strconv.Itoa(p)
}

// DeadLetterSubject returns the subject dead letters of handler are mirrored to.
func DeadLetterSubject(prefix, handler string) string {
	return prefix + "." + handler
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int // -1 picks a random port
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns embedded server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   256 << 20, // 256MB
		JetStreamMaxStore: 4 << 30,   // 4GB
	}
}

// StreamConfig holds JetStream stream configuration.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns the activity stream capturing both the
// partition subjects and the dead-letter subjects.
func DefaultStreamConfig(subjectPrefix, dlqPrefix string) StreamConfig {
	return StreamConfig{
		Name:            "PULSE_ACTIVITY",
		Subjects:        []string{subjectPrefix + ".*", dlqPrefix + ".*"},
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions

	// SubjectPrefix and Partitions route envelopes to SubjectFor(prefix, bucket).
	SubjectPrefix string
	Partitions    int

	// DLQPrefix is the subject prefix dead letters are mirrored under.
	DLQPrefix string
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
		SubjectPrefix:    "pulse.events",
		Partitions:       8,
		DLQPrefix:        "pulse.dlq",
	}
}

// JetStreamSourceConfig holds the pull consumer settings.
type JetStreamSourceConfig struct {
	Stream        string
	SubjectPrefix string
	Partitions    int
	DurablePrefix string
	FetchWait     time.Duration
	AckWait       time.Duration
}

// DefaultJetStreamSourceConfig returns consumer defaults.
func DefaultJetStreamSourceConfig() JetStreamSourceConfig {
	return JetStreamSourceConfig{
		Stream:        "PULSE_ACTIVITY",
		SubjectPrefix: "pulse.events",
		Partitions:    8,
		DurablePrefix: "pulse-ingest",
		FetchWait:     5 * time.Second,
		AckWait:       2 * time.Minute,
	}
}

// Validate checks the consumer settings.
func (c JetStreamSourceConfig) Validate() error {
	if c.Stream == "" || c.SubjectPrefix == "" || c.DurablePrefix == "" {
		return fmt.Errorf("%w: stream, subject prefix and durable prefix are required", ErrInvalidConfig)
	}
	if c.Partitions < 1 {
		return fmt.Errorf("%w: partitions must be positive", ErrInvalidConfig)
	}
	return nil
}

// KafkaSourceConfig holds the franz-go consumer settings.
type KafkaSourceConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
	MaxWait  time.Duration
}

// Validate checks the consumer settings.
func (c KafkaSourceConfig) Validate() error {
	switch {
	case len(c.Brokers) == 0:
		return fmt.Errorf("%w: kafka brokers are required", ErrInvalidConfig)
	case c.Topic == "":
		return fmt.Errorf("%w: kafka topic is required", ErrInvalidConfig)
	case c.GroupID == "":
		return fmt.Errorf("%w: kafka group id is required", ErrInvalidConfig)
	}
	return nil
}

// GatewayConfig configures dispatch.
type GatewayConfig struct {
	// Retry is shared by every handler.
	Retry *retry.Policy

	// AttemptTimeout bounds a single handler attempt.
	AttemptTimeout time.Duration
}

// DefaultGatewayConfig returns dispatch defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Retry:          retry.DefaultPolicy(),
		AttemptTimeout: 10 * time.Second,
	}
}

// DLQConfig configures the in-memory dead-letter store.
type DLQConfig struct {
	// MaxEntries bounds the store. The oldest entry is evicted first.
	MaxEntries int

	// RetentionTime is how long entries are kept before cleanup.
	RetentionTime time.Duration

	// CleanupInterval is how often expired entries are removed.
	CleanupInterval time.Duration

	// MirrorTimeout bounds each broker mirror publish.
	MirrorTimeout time.Duration
}

// DefaultDLQConfig returns production defaults for DLQ configuration.
func DefaultDLQConfig() DLQConfig {
	return DLQConfig{
		MaxEntries:      10000,
		RetentionTime:   7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		MirrorTimeout:   5 * time.Second,
	}
}

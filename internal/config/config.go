// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment Variables: Override any mapped setting
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
//	srv := http.Server{Addr: cfg.Server.Addr()}
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	NATS       NATSConfig       `koanf:"nats"`
	Kafka      KafkaConfig      `koanf:"kafka"` // Optional: alternate ingestion source
	Ingest     IngestConfig     `koanf:"ingest"`
	Presence   PresenceConfig   `koanf:"presence"`
	Search     SearchConfig     `koanf:"search"`
	WebSocket  WebSocketConfig  `koanf:"websocket"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds token verification, CORS and API rate limit settings.
type SecurityConfig struct {
	// JWTSecret is the HS256 key shared with the token issuer.
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"` // lifetime of tokens minted by pulsectl

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// NATSConfig holds broker connection and stream settings.
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	Stream          string        `koanf:"stream"`
	SubjectPrefix   string        `koanf:"subject_prefix"`
	DLQPrefix       string        `koanf:"dlq_prefix"`
	DurablePrefix   string        `koanf:"durable_prefix"`
	StreamRetention time.Duration `koanf:"stream_retention"`
	FetchWait       time.Duration `koanf:"fetch_wait"`
	AckWait         time.Duration `koanf:"ack_wait"`
}

// KafkaConfig holds the optional Kafka source settings.
type KafkaConfig struct {
	Brokers  []string      `koanf:"brokers"`
	Topic    string        `koanf:"topic"`
	GroupID  string        `koanf:"group_id"`
	ClientID string        `koanf:"client_id"`
	MaxWait  time.Duration `koanf:"max_wait"`
}

// IngestConfig holds ingestion gateway settings.
type IngestConfig struct {
	// Source selects the broker: "jetstream" or "kafka".
	Source     string `koanf:"source"`
	Partitions int    `koanf:"partitions"`

	RetryMaxAttempts int           `koanf:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay    time.Duration `koanf:"retry_max_delay"`
	AttemptTimeout   time.Duration `koanf:"attempt_timeout"`

	DLQMaxEntries      int           `koanf:"dlq_max_entries"`
	DLQRetention       time.Duration `koanf:"dlq_retention"`
	DLQCleanupInterval time.Duration `koanf:"dlq_cleanup_interval"`
	DLQMirror          bool          `koanf:"dlq_mirror"` // publish dead letters to the broker
}

// PresenceConfig holds batcher and fast store settings.
type PresenceConfig struct {
	// Store selects the backend: "redis" or "memory".
	Store         string        `koanf:"store"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
	KeyTTL        time.Duration `koanf:"key_ttl"`
	OpTimeout     time.Duration `koanf:"op_timeout"`

	FlushInterval time.Duration `koanf:"flush_interval"`
	MaxDirty      int           `koanf:"max_dirty"`
	ActiveWindow  time.Duration `koanf:"active_window"`
}

// SearchConfig holds search engine and indexer pool settings.
type SearchConfig struct {
	// Engine is the default engine: "badger" or "duckdb".
	Engine     string `koanf:"engine"`
	BadgerPath string `koanf:"badger_path"` // empty runs badger in memory
	DuckDBPath string `koanf:"duckdb_path"` // empty runs duckdb in memory

	// EnableDuckDB opens the duckdb engine alongside badger so queries may
	// select it by name.
	EnableDuckDB bool `koanf:"enable_duckdb"`

	Workers   int           `koanf:"workers"`
	QueueSize int           `koanf:"queue_size"`
	OpTimeout time.Duration `koanf:"op_timeout"`
}

// WebSocketConfig holds socket gateway settings.
type WebSocketConfig struct {
	SendQueueSize  int           `koanf:"send_queue_size"`
	AuthTimeout    time.Duration `koanf:"auth_timeout"`
	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	InboundRate    float64       `koanf:"inbound_rate"`
	InboundBurst   int           `koanf:"inbound_burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig holds supervisor tree settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`

	// DrainTimeout bounds each step of the ordered shutdown.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Load loads configuration using Koanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pulse/config.yaml",
	"/etc/pulse/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:         "", // Required
			TokenTTL:          24 * time.Hour,
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		NATS: NATSConfig{
			URL:             "nats://127.0.0.1:4222",
			EmbeddedServer:  true,
			StoreDir:        "/data/nats/jetstream",
			MaxMemory:       256 << 20, // 256MB
			MaxStore:        4 << 30,   // 4GB
			Stream:          "PULSE_ACTIVITY",
			SubjectPrefix:   "pulse.events",
			DLQPrefix:       "pulse.dlq",
			DurablePrefix:   "pulse-ingest",
			StreamRetention: 7 * 24 * time.Hour,
			FetchWait:       5 * time.Second,
			AckWait:         2 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "pulse.events",
			GroupID:  "pulse-ingest",
			ClientID: "pulse",
			MaxWait:  5 * time.Second,
		},
		Ingest: IngestConfig{
			Source:             "jetstream",
			Partitions:         8,
			RetryMaxAttempts:   3,
			RetryBaseDelay:     100 * time.Millisecond,
			RetryMaxDelay:      5 * time.Second,
			AttemptTimeout:     10 * time.Second,
			DLQMaxEntries:      10000,
			DLQRetention:       7 * 24 * time.Hour,
			DLQCleanupInterval: time.Hour,
			DLQMirror:          true,
		},
		Presence: PresenceConfig{
			Store:         "redis",
			RedisAddr:     "localhost:6379",
			KeyPrefix:     "pulse:presence",
			KeyTTL:        30 * 24 * time.Hour,
			OpTimeout:     2 * time.Second,
			FlushInterval: 5 * time.Second,
			MaxDirty:      10000,
			ActiveWindow:  5 * time.Minute,
		},
		Search: SearchConfig{
			Engine:       "badger",
			BadgerPath:   "/data/search",
			DuckDBPath:   "/data/search.duckdb",
			EnableDuckDB: false,
			Workers:      4,
			QueueSize:    128,
			OpTimeout:    5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			SendQueueSize:  256,
			AuthTimeout:    10 * time.Second,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			MaxMessageSize: 64 * 1024,
			InboundRate:    10,
			InboundBurst:   20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			DrainTimeout:     10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults (lowest priority)
//  2. Config file (YAML) if present
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// NATS_URL -> nats.url, REDIS_ADDR -> presence.redis_addr
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the following order:
//  1. Path specified by CONFIG_PATH environment variable
//  2. Default paths (config.yaml, config.yml, /etc/pulse/config.yaml, etc.)
//
// Returns empty string if no config file is found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths that accept comma-separated values
// from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"kafka.brokers",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Values already loaded as slices (defaults, YAML) are kept.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server mappings
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Security mappings
	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// NATS mappings
	"nats_url":              "nats.url",
	"nats_embedded":         "nats.embedded_server",
	"nats_store_dir":        "nats.store_dir",
	"nats_max_memory":       "nats.max_memory",
	"nats_max_store":        "nats.max_store",
	"nats_stream":           "nats.stream",
	"nats_subject_prefix":   "nats.subject_prefix",
	"nats_dlq_prefix":       "nats.dlq_prefix",
	"nats_durable_prefix":   "nats.durable_prefix",
	"nats_stream_retention": "nats.stream_retention",
	"nats_fetch_wait":       "nats.fetch_wait",
	"nats_ack_wait":         "nats.ack_wait",

	// Kafka mappings
	"kafka_brokers":   "kafka.brokers",
	"kafka_topic":     "kafka.topic",
	"kafka_group_id":  "kafka.group_id",
	"kafka_client_id": "kafka.client_id",
	"kafka_max_wait":  "kafka.max_wait",

	// Ingest mappings
	"ingest_source":          "ingest.source",
	"ingest_partitions":      "ingest.partitions",
	"ingest_retry_attempts":  "ingest.retry_max_attempts",
	"ingest_retry_delay":     "ingest.retry_base_delay",
	"ingest_retry_max_delay": "ingest.retry_max_delay",
	"ingest_attempt_timeout": "ingest.attempt_timeout",
	"dlq_max_entries":        "ingest.dlq_max_entries",
	"dlq_retention":          "ingest.dlq_retention",
	"dlq_cleanup_interval":   "ingest.dlq_cleanup_interval",
	"dlq_mirror":             "ingest.dlq_mirror",

	// Presence mappings
	"presence_store":          "presence.store",
	"redis_addr":              "presence.redis_addr",
	"redis_password":          "presence.redis_password",
	"redis_db":                "presence.redis_db",
	"presence_key_prefix":     "presence.key_prefix",
	"presence_key_ttl":        "presence.key_ttl",
	"presence_op_timeout":     "presence.op_timeout",
	"presence_flush_interval": "presence.flush_interval",
	"presence_max_dirty":      "presence.max_dirty",
	"presence_active_window":  "presence.active_window",

	// Search mappings
	"search_engine":        "search.engine",
	"search_badger_path":   "search.badger_path",
	"search_duckdb_path":   "search.duckdb_path",
	"search_enable_duckdb": "search.enable_duckdb",
	"search_workers":       "search.workers",
	"search_queue_size":    "search.queue_size",
	"search_op_timeout":    "search.op_timeout",

	// WebSocket mappings
	"ws_send_queue_size":  "websocket.send_queue_size",
	"ws_auth_timeout":     "websocket.auth_timeout",
	"ws_write_wait":       "websocket.write_wait",
	"ws_pong_wait":        "websocket.pong_wait",
	"ws_max_message_size": "websocket.max_message_size",
	"ws_inbound_rate":     "websocket.inbound_rate",
	"ws_inbound_burst":    "websocket.inbound_burst",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor mappings
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_drain_timeout":     "supervisor.drain_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - NATS_URL -> nats.url
//   - REDIS_ADDR -> presence.redis_addr
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

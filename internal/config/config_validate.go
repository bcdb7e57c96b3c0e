// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// minJWTSecretLength is the minimum HS256 key length accepted.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateIngest(); err != nil {
		return err
	}

	if err := c.validatePresence(); err != nil {
		return err
	}

	if err := c.validateSearch(); err != nil {
		return err
	}

	if err := c.validateWebSocket(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP_READ_TIMEOUT and HTTP_WRITE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

// validateIngest validates the ingestion source and its broker settings.
func (c *Config) validateIngest() error {
	if c.Ingest.Partitions < 1 {
		return fmt.Errorf("INGEST_PARTITIONS must be positive, got %d", c.Ingest.Partitions)
	}
	if c.Ingest.RetryMaxAttempts < 1 {
		return fmt.Errorf("INGEST_RETRY_ATTEMPTS must be at least 1, got %d", c.Ingest.RetryMaxAttempts)
	}
	if c.Ingest.RetryBaseDelay <= 0 || c.Ingest.RetryMaxDelay < c.Ingest.RetryBaseDelay {
		return fmt.Errorf("INGEST_RETRY_DELAY must be positive and not exceed INGEST_RETRY_MAX_DELAY")
	}

	switch c.Ingest.Source {
	case "jetstream":
		return c.validateNATS()
	case "kafka":
		// Dead letters are still mirrored through NATS when enabled.
		if c.Ingest.DLQMirror {
			if err := c.validateNATS(); err != nil {
				return err
			}
		}
		return c.validateKafka()
	default:
		return fmt.Errorf("INGEST_SOURCE must be jetstream or kafka, got %q", c.Ingest.Source)
	}
}

func (c *Config) validateNATS() error {
	if !c.NATS.EmbeddedServer {
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required when NATS_EMBEDDED=false")
		}
		u, err := url.Parse(c.NATS.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("NATS_URL is invalid: %q", c.NATS.URL)
		}
	}
	if c.NATS.SubjectPrefix == "" || c.NATS.DLQPrefix == "" {
		return fmt.Errorf("NATS_SUBJECT_PREFIX and NATS_DLQ_PREFIX are required")
	}
	if c.NATS.SubjectPrefix == c.NATS.DLQPrefix {
		return fmt.Errorf("NATS_SUBJECT_PREFIX and NATS_DLQ_PREFIX must differ")
	}
	if c.NATS.Stream == "" || c.NATS.DurablePrefix == "" {
		return fmt.Errorf("NATS_STREAM and NATS_DURABLE_PREFIX are required")
	}
	return nil
}

func (c *Config) validateKafka() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when INGEST_SOURCE=kafka")
	}
	if c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
		return fmt.Errorf("KAFKA_TOPIC and KAFKA_GROUP_ID are required when INGEST_SOURCE=kafka")
	}
	return nil
}

func (c *Config) validatePresence() error {
	switch c.Presence.Store {
	case "memory":
	case "redis":
		if c.Presence.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when PRESENCE_STORE=redis")
		}
	default:
		return fmt.Errorf("PRESENCE_STORE must be redis or memory, got %q", c.Presence.Store)
	}
	if c.Presence.FlushInterval <= 0 {
		return fmt.Errorf("PRESENCE_FLUSH_INTERVAL must be positive")
	}
	if c.Presence.MaxDirty < 1 {
		return fmt.Errorf("PRESENCE_MAX_DIRTY must be positive, got %d", c.Presence.MaxDirty)
	}
	return nil
}

func (c *Config) validateSearch() error {
	switch c.Search.Engine {
	case "badger":
	case "duckdb":
		if !c.Search.EnableDuckDB {
			return fmt.Errorf("SEARCH_ENGINE=duckdb requires SEARCH_ENABLE_DUCKDB=true")
		}
	default:
		return fmt.Errorf("SEARCH_ENGINE must be badger or duckdb, got %q", c.Search.Engine)
	}
	if c.Search.Workers < 1 || c.Search.QueueSize < 1 {
		return fmt.Errorf("SEARCH_WORKERS and SEARCH_QUEUE_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.SendQueueSize < 1 {
		return fmt.Errorf("WS_SEND_QUEUE_SIZE must be positive, got %d", c.WebSocket.SendQueueSize)
	}
	if c.WebSocket.PongWait <= c.WebSocket.WriteWait {
		return fmt.Errorf("WS_PONG_WAIT must exceed WS_WRITE_WAIT")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

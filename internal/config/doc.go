// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

/*
Package config provides centralized configuration management for Pulse.

Configuration is layered with Koanf v2: built-in defaults, then an optional
YAML file, then environment variables. The result is validated before use.

# Configuration Sources

  - Defaults: defaultConfig()
  - YAML file: CONFIG_PATH, or the first of DefaultConfigPaths that exists
  - Environment: the mapped variables below

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT (default: 0.0.0.0:8080)
  - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_IDLE_TIMEOUT, HTTP_SHUTDOWN_TIMEOUT

Security:
  - JWT_SECRET: HS256 session token key (required, 32+ characters)
  - CORS_ORIGINS: comma-separated allowed origins (default: *)
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT

Broker:
  - INGEST_SOURCE: jetstream (default) or kafka
  - NATS_URL, NATS_EMBEDDED, NATS_STORE_DIR, NATS_SUBJECT_PREFIX, NATS_DLQ_PREFIX
  - KAFKA_BROKERS (comma-separated), KAFKA_TOPIC, KAFKA_GROUP_ID

Ingestion:
  - INGEST_PARTITIONS, INGEST_RETRY_ATTEMPTS, INGEST_RETRY_DELAY, INGEST_ATTEMPT_TIMEOUT
  - DLQ_MAX_ENTRIES, DLQ_RETENTION, DLQ_MIRROR

Presence:
  - PRESENCE_STORE: redis (default) or memory
  - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
  - PRESENCE_FLUSH_INTERVAL, PRESENCE_MAX_DIRTY, PRESENCE_ACTIVE_WINDOW

Search:
  - SEARCH_ENGINE: badger (default) or duckdb
  - SEARCH_BADGER_PATH, SEARCH_DUCKDB_PATH, SEARCH_ENABLE_DUCKDB
  - SEARCH_WORKERS, SEARCH_QUEUE_SIZE, SEARCH_OP_TIMEOUT

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Example YAML

	server:
	  port: 8080
	security:
	  jwt_secret: "change-me-to-a-32-character-secret"
	  cors_origins: ["https://app.example.com"]
	presence:
	  store: redis
	  redis_addr: redis:6379
	search:
	  engine: badger
	  badger_path: /data/search
*/
package config

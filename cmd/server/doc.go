// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

/*
Package main is the entry point for the Pulse server.

Pulse consumes activity events from a partitioned broker and fans each one out
to four handlers: presence tracking, event counters, the search indexer and
the WebSocket notification gateway.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("pulse")
	├── DataSupervisor ("data-layer")
	│   ├── Presence batcher (periodic flush to Redis)
	│   ├── Search indexer (keyed worker pool)
	│   └── DLQ cleanup
	├── MessagingSupervisor ("messaging-layer")
	│   ├── Ingestion gateway (JetStream or Kafka)
	│   └── WebSocket gateway
	└── APISupervisor ("api-layer")
	    └── HTTP server

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. NATS: embedded or external server, stream, dead-letter mirror
 4. Presence: Redis (or in-memory) store and batcher
 5. Search: badger, optionally duckdb, and the indexer
 6. WebSocket gateway and ingestion handlers
 7. HTTP server: chi router with middleware stack
 8. Supervisor tree

# Configuration

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	HTTP_PORT=8080
	JWT_SECRET=<32+ chars>       # shared with the token issuer
	INGEST_SOURCE=jetstream      # jetstream or kafka
	NATS_URL=nats://127.0.0.1:4222
	NATS_EMBEDDED=true
	KAFKA_BROKERS=localhost:9092
	PRESENCE_STORE=redis         # redis or memory
	REDIS_ADDR=localhost:6379
	SEARCH_ENGINE=badger         # badger or duckdb
	SEARCH_ENABLE_DUCKDB=false
	LOG_LEVEL=info
	LOG_FORMAT=json

See internal/config for the full list.

# Signal Handling

On SIGINT or SIGTERM the services are drained one at a time: ingestion stops
first, then the indexer finishes its queues, the batcher performs its final
flush, sockets are closed with 1001, and the HTTP server shuts down last.
*/
package main

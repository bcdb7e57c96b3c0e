// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package eventprocessor ingests activity envelopes from the broker and
// dispatches them to the registered handlers.
//
// # Data Flow
//
//	┌────────────────┐     ┌─────────────────────┐
//	│ Entity services│────▶│   NATS JetStream    │  pulse.events.<partition>
//	│  (Publisher)   │     │  (or Kafka topic)   │
//	└────────────────┘     └──────────┬──────────┘
//	                                  │ one ordered stream per partition
//	                                  ▼
//	                       ┌─────────────────────┐
//	                       │       Gateway       │  decode, dispatch, commit
//	                       └──────────┬──────────┘
//	          ┌───────────────┬───────┴───────┬───────────────┐
//	          ▼               ▼               ▼               ▼
//	     ┌─────────┐    ┌──────────┐    ┌──────────┐    ┌──────────┐
//	     │presence │    │ metrics  │    │ indexer  │    │  fanout  │
//	     └─────────┘    └──────────┘    └──────────┘    └──────────┘
//
// # Delivery Semantics
//
// Handlers run one after another in registration order, so events sharing a
// partition are seen in stream order by every handler. Each handler is retried
// with the shared retry.Policy; when its budget is spent the event is written
// to the DLQ for that handler alone and the remaining handlers still run.
//
// The offset is committed only after every handler has either succeeded or
// been dead-lettered. A crash in between leads to redelivery, and every handler
// is idempotent on (partition, offset).
//
// Envelopes that fail validation are counted, logged and committed so a
// single bad message never blocks its partition.
//
// # Sources
//
//   - JetStreamSource: one durable pull consumer per partition with
//     MaxAckPending=1. The offset is the stream sequence.
//   - KafkaSource: franz-go consumer group with manual offset commits.
//
// # Broker Side
//
//   - EmbeddedServer runs nats-server in-process for single-node deployments.
//   - StreamInitializer creates or updates the JetStream stream.
//   - Publisher routes envelopes to partitions by partition key and mirrors
//     dead letters to the DLQ subject.
package eventprocessor

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package metrics holds the Prometheus collectors for every pipeline stage and
// the in-process Aggregator that backs the metrics snapshot API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_received_total",
			Help: "Activity events received, counted once per stream offset",
		},
		[]string{"type"},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_events_failed_total",
			Help: "Activity events for which a handler exhausted its retries",
		},
		[]string{"type"},
	)

	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_ingest_decode_errors_total",
			Help: "Broker envelopes skipped because they failed validation",
		},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_handler_duration_seconds",
			Help:    "Time spent in a handler for one event, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	HandlerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_handler_retries_total",
			Help: "Handler attempts beyond the first",
		},
		[]string{"handler"},
	)

	OffsetCommitted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_ingest_committed_offset",
			Help: "Last committed offset per source partition",
		},
		[]string{"source", "partition"},
	)

	// Dead letters
	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_dead_letters_total",
			Help: "Events dead-lettered per handler",
		},
		[]string{"handler"},
	)

	DLQSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_dlq_entries",
			Help: "Dead-letter entries currently held in memory",
		},
	)

	// Presence batcher
	PresenceFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_presence_flushes_total",
			Help: "Presence flushes by result (ok, failed, empty)",
		},
		[]string{"result"},
	)

	PresenceFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_presence_flush_size",
			Help:    "Records written per presence flush",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	PresenceDirty = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_presence_dirty_entries",
			Help: "Presence records waiting for the next flush",
		},
	)

	// Realtime fan-out
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_websocket_sessions",
			Help: "Authenticated websocket sessions",
		},
	)

	WSAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_websocket_auth_failures_total",
			Help: "Socket connections rejected during authentication",
		},
	)

	WSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_websocket_messages_total",
			Help: "Frames queued to sessions by result (sent, dropped)",
		},
		[]string{"result"},
	)

	// Search index
	IndexWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_index_writes_total",
			Help: "Search index writes by engine and outcome (applied, conflict, unavailable)",
		},
		[]string{"engine", "outcome"},
	)

	IndexFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_index_failures_total",
			Help: "Index writes dead-lettered after the retry budget; alert when non-zero",
		},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_search_duration_seconds",
			Help:    "Search query latency by engine",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	// Infrastructure
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulse_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_publish_total",
			Help: "Broker publishes by result",
		},
		[]string{"result"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordHandler records one handler invocation.
func RecordHandler(handler string, attempts int, d time.Duration) {
	HandlerDuration.WithLabelValues(handler).Observe(d.Seconds())
	if attempts > 1 {
		HandlerRetries.WithLabelValues(handler).Add(float64(attempts - 1))
	}
}

// RecordCommit records the committed offset of a partition.
func RecordCommit(source string, partition int32, offset int64) {
	OffsetCommitted.WithLabelValues(source, strconv.Itoa(int(partition))).Set(float64(offset))
}

// RecordDeadLetter records a dead-lettered event for handler.
func RecordDeadLetter(handler string, held int) {
	DeadLetters.WithLabelValues(handler).Inc()
	DLQSize.Set(float64(held))
}

// RecordPresenceFlush records the outcome of one batcher flush.
func RecordPresenceFlush(size int, err error) {
	switch {
	case err != nil:
		PresenceFlushes.WithLabelValues("failed").Inc()
	case size == 0:
		PresenceFlushes.WithLabelValues("empty").Inc()
	default:
		PresenceFlushes.WithLabelValues("ok").Inc()
		PresenceFlushSize.Observe(float64(size))
	}
}

// RecordFrame records a frame handed to (or dropped by) a session queue.
func RecordFrame(sent bool) {
	if sent {
		WSMessages.WithLabelValues("sent").Inc()
		return
	}
	WSMessages.WithLabelValues("dropped").Inc()
}

// RecordIndexWrite records an index write outcome.
func RecordIndexWrite(engine, outcome string) {
	IndexWrites.WithLabelValues(engine, outcome).Inc()
}

// RecordSearch records a search query.
func RecordSearch(engine string, d time.Duration) {
	SearchDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// RecordCircuitBreakerState records a breaker transition.
func RecordCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordPublish records a broker publish.
func RecordPublish(err error) {
	if err != nil {
		PublishTotal.WithLabelValues("error").Inc()
		return
	}
	PublishTotal.WithLabelValues("ok").Inc()
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

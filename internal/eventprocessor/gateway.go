// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/tomtom215/pulse/internal/events"
	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/metrics"
	"github.com/tomtom215/pulse/internal/retry"
)

// Handler processes one decoded event. Implementations must be idempotent on
// (Partition, Offset) because the gateway delivers at least once.
type Handler interface {
	Handle(ctx context.Context, ev events.ActivityEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev events.ActivityEvent) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ev events.ActivityEvent) error {
	return f(ctx, ev)
}

// DeadLetterSink receives events a handler gave up on.
type DeadLetterSink interface {
	DeadLetter(ev events.ActivityEvent, handler string, attempts int, err error)
}

// FailureRecorder counts exhausted handlers per event.
type FailureRecorder interface {
	RecordFailedAt(ev events.ActivityEvent, handler string)
}

// HandlerOutcome is the result of one handler for one event.
type HandlerOutcome struct {
	Handler      string
	Attempts     int
	Err          error
	DeadLettered bool
}

type namedHandler struct {
	name string
	h    Handler
}

// Gateway decodes deliveries, runs every registered handler in order and
// commits the offset once all of them are settled.
type Gateway struct {
	cfg      GatewayConfig
	source   Source
	dlq      DeadLetterSink
	failures FailureRecorder
	handlers []namedHandler
}

// NewGateway creates a gateway reading from source. dlq and failures may be nil.
func NewGateway(cfg GatewayConfig, source Source, dlq DeadLetterSink, failures FailureRecorder) *Gateway {
	def := DefaultGatewayConfig()
	if cfg.Retry == nil {
		cfg.Retry = def.Retry
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	return &Gateway{cfg: cfg, source: source, dlq: dlq, failures: failures}
}

// Register appends a handler. Handlers run in registration order. Register
// must not be called once Serve has started.
func (g *Gateway) Register(name string, h Handler) {
	g.handlers = append(g.handlers, namedHandler{name: name, h: h})
}

// Handlers returns the registered handler names in order.
func (g *Gateway) Handlers() []string {
	out := make([]string, len(g.handlers))
	for i, nh := range g.handlers {
		out[i] = nh.name
	}
	return out
}

// Serve consumes the source until ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context) error {
	if g.source == nil {
		return fmt.Errorf("%w: no source configured", ErrInvalidConfig)
	}
	logging.Info().
		Str("source", g.source.Name()).
		Strs("handlers", g.Handlers()).
		Msg("Ingestion gateway started")

	err := g.source.Run(ctx, g.Process)
	if ctx.Err() != nil {
		logging.Info().Msg("Ingestion gateway stopped")
		return ctx.Err()
	}
	return err
}

// Process handles one delivery: decode, dispatch, commit.
func (g *Gateway) Process(ctx context.Context, d Delivery) error {
	ev, err := events.Decode(d.Data)
	if err != nil {
		metrics.DecodeErrors.Inc()
		logging.Warn().
			Err(err).
			Int32("partition", d.Partition).
			Int64("offset", d.Offset).
			Msg("Skipping undecodable envelope")
		return g.commit(d)
	}
	ev = ev.WithPosition(d.Partition, d.Offset)

	g.Dispatch(ctx, ev)
	if err := ctx.Err(); err != nil {
		// Shutting down mid-dispatch: leave the offset for redelivery.
		return err
	}
	return g.commit(d)
}

func (g *Gateway) commit(d Delivery) error {
	if err := d.Commit(); err != nil {
		// The broker redelivers; handlers are idempotent.
		logging.Warn().
			Err(err).
			Int32("partition", d.Partition).
			Int64("offset", d.Offset).
			Msg("Offset commit failed")
		return nil
	}
	if g.source != nil {
		metrics.RecordCommit(g.source.Name(), d.Partition, d.Offset)
	}
	return nil
}

// Dispatch runs every handler for ev in registration order and returns one
// outcome per handler. A handler that exhausts its retries is dead-lettered
// and the remaining handlers still run.
func (g *Gateway) Dispatch(ctx context.Context, ev events.ActivityEvent) []HandlerOutcome {
	outcomes := make([]HandlerOutcome, 0, len(g.handlers))
	for _, nh := range g.handlers {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, g.invoke(ctx, nh, ev))
	}
	return outcomes
}

func (g *Gateway) invoke(ctx context.Context, nh namedHandler, ev events.ActivityEvent) HandlerOutcome {
	start := time.Now()
	attempts, err := g.cfg.Retry.Do(ctx, func(ctx context.Context, _ int) error {
		actx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
		defer cancel()
		return safeHandle(actx, nh.h, ev)
	})
	metrics.RecordHandler(nh.name, attempts, time.Since(start))

	out := HandlerOutcome{Handler: nh.name, Attempts: attempts}
	if err == nil {
		return out
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		out.Err = err
		return out
	}

	herr := &HandlerError{Handler: nh.name, Attempts: attempts, Err: err}
	out.Err = herr
	out.DeadLettered = true
	if g.dlq != nil {
		g.dlq.DeadLetter(ev, nh.name, attempts, herr)
	}
	if g.failures != nil {
		g.failures.RecordFailedAt(ev, nh.name)
	}
	return out
}

// safeHandle converts a handler panic into a permanent error.
func safeHandle(ctx context.Context, h Handler, ev events.ActivityEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("type", string(ev.Type)).
				Bytes("stack", debug.Stack()).
				Msgf("Handler panic: %v", r)
			err = retry.Permanent(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
	}()
	return h.Handle(ctx, ev)
}

// String implements fmt.Stringer for suture logging.
func (g *Gateway) String() string {
	return "ingestion-gateway"
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/pulse/internal/breaker"
	"github.com/tomtom215/pulse/internal/events"
	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/metrics"
	"github.com/tomtom215/pulse/internal/retry"
	"github.com/tomtom215/pulse/internal/routing"
)

// HandlerName is the name the indexer registers with the ingestion gateway
// and uses for its dead letters.
const HandlerName = "indexer"

var (
	// ErrInvalidDocument wraps snapshots that cannot be turned into a document.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrIndexerStopped is returned for writes pending when the pool stops.
	ErrIndexerStopped = errors.New("indexer stopped")
)

// DeadLetterSink receives index writes that exhausted their retries.
type DeadLetterSink interface {
	DeadLetter(ev events.ActivityEvent, handler string, attempts int, err error)
}

// FailureRecorder counts failures and conflicts.
type FailureRecorder interface {
	RecordFailedAt(ev events.ActivityEvent, handler string)
	RecordIndexConflict()
}

// IndexerConfig configures the worker pool.
type IndexerConfig struct {
	// Workers is the number of keyed workers. Writes for one document always
	// land on the same worker.
	Workers int

	// QueueSize is the FIFO depth of each worker.
	QueueSize int

	// OpTimeout bounds each index call.
	OpTimeout time.Duration

	// Retry is the policy for transient failures.
	Retry *retry.Policy
}

// DefaultIndexerConfig returns pool defaults.
func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{
		Workers:   4,
		QueueSize: 128,
		OpTimeout: 5 * time.Second,
		Retry:     retry.DefaultPolicy(),
	}
}

type job struct {
	ctx  context.Context
	ev   events.ActivityEvent
	doc  Document
	done chan Outcome
}

// Indexer applies EntityChanged events to an Index. Writes to one document are
// serialized through its worker; writes to different documents run in parallel.
type Indexer struct {
	cfg      IndexerConfig
	index    Index
	cb       *gobreaker.CircuitBreaker[any]
	dlq      DeadLetterSink
	failures FailureRecorder
	queues   []chan *job

	mu   sync.Mutex
	quit chan struct{}
}

// NewIndexer creates an indexer writing to index. dlq and failures may be nil.
func NewIndexer(cfg IndexerConfig, index Index, dlq DeadLetterSink, failures FailureRecorder) *Indexer {
	def := DefaultIndexerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = def.Retry
	}

	bcfg := breaker.DefaultConfig("search-" + index.Name())
	bcfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrIndexConflict)
	}

	idx := &Indexer{
		cfg:      cfg,
		index:    index,
		cb:       breaker.New(bcfg),
		dlq:      dlq,
		failures: failures,
		queues:   make([]chan *job, cfg.Workers),
		quit:     make(chan struct{}),
	}
	for i := range idx.queues {
		idx.queues[i] = make(chan *job, cfg.QueueSize)
	}
	return idx
}

// Apply builds the document carried by ev and writes it through the pool. It
// blocks until the write is applied, rejected as stale, or dead-lettered.
// Events other than EntityChanged are skipped.
func (x *Indexer) Apply(ctx context.Context, ev events.ActivityEvent) (Outcome, error) {
	p, ok := ev.EntityChanged()
	if !ok {
		return OutcomeSkipped, nil
	}
	doc, err := BuildDocument(p, ev.Timestamp)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	j := &job{ctx: ctx, ev: ev, doc: doc, done: make(chan Outcome, 1)}
	q := x.queues[routing.Bucket(doc.Key(), len(x.queues))]
	quit := x.quitChan()

	select {
	case q <- j:
	case <-ctx.Done():
		return OutcomeUnavailable, ctx.Err()
	case <-quit:
		return OutcomeUnavailable, ErrIndexerStopped
	}

	select {
	case out := <-j.done:
		return out, nil
	case <-ctx.Done():
		return OutcomeUnavailable, ctx.Err()
	case <-quit:
		return OutcomeUnavailable, ErrIndexerStopped
	}
}

// Handle is the ingestion handler. Writes that exhausted their retries have
// already been dead-lettered by the indexer, so only malformed snapshots and
// cancellation surface as errors.
func (x *Indexer) Handle(ctx context.Context, ev events.ActivityEvent) error {
	_, err := x.Apply(ctx, ev)
	if errors.Is(err, ErrInvalidDocument) {
		return retry.Permanent(err)
	}
	return err
}

// Serve runs the workers until ctx is cancelled. Writes still queued at that
// point fail with ErrIndexerStopped and are redelivered by the broker.
func (x *Indexer) Serve(ctx context.Context) error {
	quit := x.resetQuit()

	var wg sync.WaitGroup
	for _, q := range x.queues {
		wg.Add(1)
		go func(q chan *job) {
			defer wg.Done()
			x.work(ctx, quit, q)
		}(q)
	}

	logging.Info().
		Str("engine", x.index.Name()).
		Int("workers", len(x.queues)).
		Msg("Search indexer started")

	<-ctx.Done()
	x.mu.Lock()
	close(quit)
	x.mu.Unlock()
	wg.Wait()

	logging.Info().Str("engine", x.index.Name()).Msg("Search indexer stopped")
	return ctx.Err()
}

func (x *Indexer) quitChan() chan struct{} {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.quit
}

// resetQuit replaces a quit channel closed by a previous Serve run.
func (x *Indexer) resetQuit() chan struct{} {
	x.mu.Lock()
	defer x.mu.Unlock()
	select {
	case <-x.quit:
		x.quit = make(chan struct{})
	default:
	}
	return x.quit
}

func (x *Indexer) work(ctx context.Context, quit chan struct{}, q chan *job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case j := <-q:
			j.done <- x.write(j)
		}
	}
}

// write applies one document with retries and settles its outcome.
func (x *Indexer) write(j *job) Outcome {
	engine := x.index.Name()

	attempts, err := x.cfg.Retry.Do(j.ctx, func(ctx context.Context, _ int) error {
		err := x.put(ctx, j.doc)
		if errors.Is(err, ErrIndexConflict) {
			return retry.Permanent(err)
		}
		return err
	})

	switch {
	case err == nil:
		metrics.RecordIndexWrite(engine, OutcomeApplied.String())
		return OutcomeApplied

	case errors.Is(err, ErrIndexConflict):
		metrics.RecordIndexWrite(engine, OutcomeConflict.String())
		if x.failures != nil {
			x.failures.RecordIndexConflict()
		}
		logging.Debug().
			Str("doc", j.doc.Key()).
			Int64("version", j.doc.Version).
			Msg("Stale index write ignored")
		return OutcomeConflict

	case j.ctx.Err() != nil:
		// The caller gave up; the event is redelivered uncommitted.
		metrics.RecordIndexWrite(engine, OutcomeUnavailable.String())
		return OutcomeUnavailable

	default:
		metrics.RecordIndexWrite(engine, OutcomeUnavailable.String())
		metrics.IndexFailures.Inc()
		if x.dlq != nil {
			x.dlq.DeadLetter(j.ev, HandlerName, attempts, err)
		}
		if x.failures != nil {
			x.failures.RecordFailedAt(j.ev, HandlerName)
		}
		logging.Error().
			Err(err).
			Str("engine", engine).
			Str("doc", j.doc.Key()).
			Int("attempts", attempts).
			Msg("Index write dead-lettered")
		return OutcomeUnavailable
	}
}

// put runs one conditional write behind the breaker and the op timeout.
func (x *Indexer) put(ctx context.Context, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.OpTimeout)
	defer cancel()

	_, err := x.cb.Execute(func() (any, error) {
		if doc.Deleted {
			return nil, x.index.Delete(ctx, doc.Kind, doc.ID, doc.Version)
		}
		return nil, x.index.Put(ctx, doc)
	})
	if breaker.IsOpen(err) {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return err
}

// String implements fmt.Stringer for suture logging.
func (x *Indexer) String() string {
	return "search-indexer"
}

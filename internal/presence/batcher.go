// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package presence coalesces high-frequency "user is active" signals into
// batched writes against a fast key-value store.
//
// MarkActive never performs I/O. Timestamps are max-wins per user, and dirty
// records are written by the flush loop every FlushInterval, or earlier when
// MaxDirty records are pending. Each batched write is retried with the shared
// retry policy within FlushTimeout; a flush that still fails leaves the
// records dirty for the next one.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/metrics"
	"github.com/tomtom215/pulse/internal/retry"
)

// Config configures a Batcher.
type Config struct {
	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration

	// MaxDirty triggers an early flush when this many records are pending.
	MaxDirty int

	// FlushTimeout bounds one flush including its retries, and the final flush.
	FlushTimeout time.Duration

	// Retry is the policy applied to each batched store write. Nil means a
	// single attempt.
	Retry *retry.Policy

	// ActiveWindow is the inactivity gap after which a user counts as newly active.
	ActiveWindow time.Duration
}

// DefaultConfig returns the batcher defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 5 * time.Second,
		MaxDirty:      10000,
		FlushTimeout:  5 * time.Second,
		ActiveWindow:  5 * time.Minute,
	}
}

// Notifier is told when a user becomes active after a period of inactivity.
type Notifier interface {
	UserBecameActive(userID string, at time.Time)
}

type entry struct {
	lastActive time.Time
	// persisted is the newest timestamp known to be in the store.
	persisted time.Time
}

// Batcher owns every presence record of the process.
type Batcher struct {
	cfg      Config
	store    Store
	notifier Notifier

	mu      sync.Mutex
	records map[string]*entry
	dirty   map[string]struct{}

	flushMu sync.Mutex
	kick    chan struct{}
}

// NewBatcher creates a Batcher writing to store. Zero config fields take defaults.
func NewBatcher(cfg Config, store Store) *Batcher {
	def := DefaultConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxDirty <= 0 {
		cfg.MaxDirty = def.MaxDirty
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = def.ActiveWindow
	}
	if cfg.Retry == nil {
		cfg.Retry = &retry.Policy{MaxAttempts: 1}
	}

	return &Batcher{
		cfg:     cfg,
		store:   store,
		records: make(map[string]*entry),
		dirty:   make(map[string]struct{}),
		kick:    make(chan struct{}, 1),
	}
}

// SetNotifier sets the receiver of "user became active" signals. It must be
// called before Serve.
func (b *Batcher) SetNotifier(n Notifier) {
	b.notifier = n
}

// MarkActive records that userID was active at ts. Older timestamps are ignored.
func (b *Batcher) MarkActive(userID string, ts time.Time) {
	if userID == "" {
		return
	}

	b.mu.Lock()
	e, ok := b.records[userID]
	if !ok {
		e = &entry{}
		b.records[userID] = e
	}
	if !ts.After(e.lastActive) {
		b.mu.Unlock()
		return
	}
	e.lastActive = ts
	b.dirty[userID] = struct{}{}
	pending := len(b.dirty)
	b.mu.Unlock()

	metrics.PresenceDirty.Set(float64(pending))
	if pending >= b.cfg.MaxDirty {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// LastActive returns the in-memory timestamp for userID, which may be newer
// than the stored one.
func (b *Batcher) LastActive(userID string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.records[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActive, true
}

// DirtyCount returns the number of records waiting for a flush.
func (b *Batcher) DirtyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dirty)
}

// Flush writes every dirty record to the store in one batch, retrying the
// write under the configured policy. Only one flush runs at a time. On
// failure the records are re-marked dirty unless a newer timestamp arrived
// meanwhile, and a *FlushError is returned.
func (b *Batcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	batch := b.swapDirty()
	if len(batch) == 0 {
		metrics.RecordPresenceFlush(0, nil)
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, b.cfg.FlushTimeout)
	attempts, err := b.cfg.Retry.Do(writeCtx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			logging.Debug().Int("attempt", attempt).Int("records", len(batch)).Msg("Retrying presence flush")
		}
		return b.store.WriteBatch(ctx, batch)
	})
	cancel()
	metrics.RecordPresenceFlush(len(batch), err)

	if err != nil {
		b.restoreDirty(batch)
		return &FlushError{Count: len(batch), Attempts: attempts, Err: err}
	}

	b.commit(batch)
	return nil
}

// swapDirty copies the dirty pairs and clears their flags under the lock.
func (b *Batcher) swapDirty() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := make([]Record, 0, len(b.dirty))
	for id := range b.dirty {
		batch = append(batch, Record{UserID: id, LastActiveAt: b.records[id].lastActive})
	}
	b.dirty = make(map[string]struct{}, len(batch))
	metrics.PresenceDirty.Set(0)
	return batch
}

func (b *Batcher) restoreDirty(batch []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range batch {
		// A newer MarkActive has already re-marked the record.
		if _, ok := b.dirty[r.UserID]; ok {
			continue
		}
		b.dirty[r.UserID] = struct{}{}
	}
	metrics.PresenceDirty.Set(float64(len(b.dirty)))
}

type activation struct {
	userID string
	at     time.Time
}

func (b *Batcher) commit(batch []Record) {
	var activated []activation

	b.mu.Lock()
	for _, r := range batch {
		e := b.records[r.UserID]
		prev := e.persisted
		if prev.IsZero() || r.LastActiveAt.Sub(prev) >= b.cfg.ActiveWindow {
			activated = append(activated, activation{userID: r.UserID, at: r.LastActiveAt})
		}
		if r.LastActiveAt.After(e.persisted) {
			e.persisted = r.LastActiveAt
		}
	}
	b.mu.Unlock()

	if b.notifier == nil {
		return
	}
	for _, a := range activated {
		b.notifier.UserBecameActive(a.userID, a.at)
	}
}

// Serve runs the flush loop until ctx is canceled, then performs one final
// flush with a fresh timeout. It implements suture.Service.
func (b *Batcher) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", b.cfg.FlushInterval).
		Int("max_dirty", b.cfg.MaxDirty).
		Msg("Presence batcher started")

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.finalFlush()
			return nil
		case <-ticker.C:
			b.flushAndLog(ctx, "interval")
		case <-b.kick:
			b.flushAndLog(ctx, "max_dirty")
		}
	}
}

func (b *Batcher) flushAndLog(ctx context.Context, trigger string) {
	if err := b.Flush(ctx); err != nil {
		logging.Warn().Err(err).Str("trigger", trigger).Msg("Presence flush failed, records kept dirty")
	}
}

func (b *Batcher) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
	defer cancel()

	if err := b.Flush(ctx); err != nil {
		logging.Error().Err(err).Int("dirty", b.DirtyCount()).Msg("Final presence flush failed")
		return
	}
	logging.Info().Msg("Presence batcher stopped after final flush")
}

// String implements fmt.Stringer for suture logging.
func (b *Batcher) String() string {
	return "presence-batcher"
}

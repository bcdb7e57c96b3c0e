// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/pulse/internal/events"
)

var (
	// ErrIndexConflict is returned by conditional writes whose version is not
	// newer than the stored one. The write is a no-op, not a failure.
	ErrIndexConflict = errors.New("index version conflict")

	// ErrIndexUnavailable marks transient engine failures worth retrying.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrNotFound is returned by Get for unknown documents.
	ErrNotFound = errors.New("document not found")

	// ErrUnknownEngine is returned when a query names an engine that is not configured.
	ErrUnknownEngine = errors.New("unknown search engine")
)

// Engine names.
const (
	EngineBadger = "badger"
	EngineDuckDB = "duckdb"
)

// Index is a versioned document store with substring search. Put and Delete
// are conditional: they write only when the incoming version is greater than
// the stored one (tombstones included) and return ErrIndexConflict otherwise.
type Index interface {
	Name() string
	Put(ctx context.Context, doc Document) error
	Delete(ctx context.Context, kind events.EntityKind, id string, version int64) error
	Get(ctx context.Context, kind events.EntityKind, id string) (Document, error)
	Search(ctx context.Context, q Query) (Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// Outcome is the result of applying one EntityChanged event.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeConflict
	OutcomeUnavailable
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeConflict:
		return "conflict"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Registry resolves engines by name for queries that pick one.
type Registry struct {
	def     string
	engines map[string]Index
}

// NewRegistry creates a registry whose default engine is def.
func NewRegistry(def Index, others ...Index) *Registry {
	r := &Registry{def: def.Name(), engines: map[string]Index{def.Name(): def}}
	for _, idx := range others {
		r.engines[idx.Name()] = idx
	}
	return r
}

// Default returns the default engine.
func (r *Registry) Default() Index {
	return r.engines[r.def]
}

// Engine returns the engine called name, or the default for "".
func (r *Registry) Engine(name string) (Index, error) {
	if name == "" {
		return r.Default(), nil
	}
	idx, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return idx, nil
}

// Names returns the configured engine names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.engines))
	for name := range r.engines {
		out = append(out, name)
	}
	return out
}

// Search runs q on the engine it names.
func (r *Registry) Search(ctx context.Context, q Query) (Result, error) {
	idx, err := r.Engine(q.Engine)
	if err != nil {
		return Result{}, err
	}
	return idx.Search(ctx, q)
}

// Close closes every engine.
func (r *Registry) Close() error {
	var errs []error
	for _, idx := range r.engines {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", idx.Name(), err))
		}
	}
	return errors.Join(errs...)
}

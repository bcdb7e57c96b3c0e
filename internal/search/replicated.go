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

// ReplicatedIndex applies every write to a primary engine and then to each
// replica, so all engines in a Registry converge on the same documents. Reads
// go to the primary.
//
// A conflict on one engine does not stop the write reaching the others. When
// a replica fails transiently the indexer retries the whole write; the
// primary then reports a conflict and the replica is written again.
type ReplicatedIndex struct {
	primary  Index
	replicas []Index
}

// NewReplicatedIndex creates a ReplicatedIndex. With no replicas it behaves
// exactly like primary.
func NewReplicatedIndex(primary Index, replicas ...Index) *ReplicatedIndex {
	return &ReplicatedIndex{primary: primary, replicas: replicas}
}

// Name implements Index.
func (r *ReplicatedIndex) Name() string { return r.primary.Name() }

// Put implements Index.
func (r *ReplicatedIndex) Put(ctx context.Context, doc Document) error {
	return r.apply(func(idx Index) error { return idx.Put(ctx, doc) })
}

// Delete implements Index.
func (r *ReplicatedIndex) Delete(ctx context.Context, kind events.EntityKind, id string, version int64) error {
	return r.apply(func(idx Index) error { return idx.Delete(ctx, kind, id, version) })
}

// apply returns the primary's result unless a replica failed with something
// other than a conflict.
func (r *ReplicatedIndex) apply(write func(Index) error) error {
	err := write(r.primary)
	if err != nil && !errors.Is(err, ErrIndexConflict) {
		return err
	}
	for _, replica := range r.replicas {
		if rerr := write(replica); rerr != nil && !errors.Is(rerr, ErrIndexConflict) {
			return fmt.Errorf("replica %s: %w", replica.Name(), rerr)
		}
	}
	return err
}

// Get implements Index.
func (r *ReplicatedIndex) Get(ctx context.Context, kind events.EntityKind, id string) (Document, error) {
	return r.primary.Get(ctx, kind, id)
}

// Search implements Index.
func (r *ReplicatedIndex) Search(ctx context.Context, q Query) (Result, error) {
	return r.primary.Search(ctx, q)
}

// Ping implements Index. Every engine must answer.
func (r *ReplicatedIndex) Ping(ctx context.Context) error {
	if err := r.primary.Ping(ctx); err != nil {
		return err
	}
	for _, replica := range r.replicas {
		if err := replica.Ping(ctx); err != nil {
			return fmt.Errorf("replica %s: %w", replica.Name(), err)
		}
	}
	return nil
}

// Close implements Index.
func (r *ReplicatedIndex) Close() error {
	errs := []error{r.primary.Close()}
	for _, replica := range r.replicas {
		errs = append(errs, replica.Close())
	}
	return errors.Join(errs...)
}

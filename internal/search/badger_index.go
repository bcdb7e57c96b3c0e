// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pulse/internal/events"
)

// docKeyPrefix namespaces search documents inside the badger keyspace.
const docKeyPrefix = "doc:"

// BadgerIndex stores versioned documents in BadgerDB. Search scans every
// document, which suits the modest corpus a single node holds.
type BadgerIndex struct {
	db     *badger.DB
	ownsDB bool
}

// OpenBadgerIndex opens (or creates) a badger database at path. An empty path
// opens an in-memory database.
func OpenBadgerIndex(path string) (*BadgerIndex, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger index: %w", err)
	}
	return &BadgerIndex{db: db, ownsDB: true}, nil
}

// NewBadgerIndex wraps an already open database. Close leaves it open.
func NewBadgerIndex(db *badger.DB) *BadgerIndex {
	return &BadgerIndex{db: db}
}

// Name implements Index.
func (b *BadgerIndex) Name() string { return EngineBadger }

func badgerKey(kind events.EntityKind, id string) []byte {
	return []byte(docKeyPrefix + DocKey(kind, id))
}

// Put implements Index.
func (b *BadgerIndex) Put(ctx context.Context, doc Document) error {
	return b.write(ctx, doc)
}

// Delete implements Index. It writes a tombstone carrying version.
func (b *BadgerIndex) Delete(ctx context.Context, kind events.EntityKind, id string, version int64) error {
	return b.write(ctx, Document{Kind: kind, ID: id, Version: version, Deleted: true})
}

// write is the read-compare-write inside one transaction.
func (b *BadgerIndex) write(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	key := badgerKey(doc.Kind, doc.ID)

	err = b.db.Update(func(txn *badger.Txn) error {
		stored, err := readDoc(txn, key)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case doc.Version <= stored.Version:
			return ErrIndexConflict
		}
		return txn.Set(key, data)
	})
	switch {
	case err == nil, errors.Is(err, ErrIndexConflict):
		return err
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	default:
		return fmt.Errorf("%w: badger write: %w", ErrIndexUnavailable, err)
	}
}

func readDoc(txn *badger.Txn, key []byte) (Document, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}

	var doc Document
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	return doc, err
}

// Get implements Index.
func (b *BadgerIndex) Get(_ context.Context, kind events.EntityKind, id string) (Document, error) {
	var doc Document
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = readDoc(txn, badgerKey(kind, id))
		return err
	})
	return doc, err
}

// Search implements Index.
func (b *BadgerIndex) Search(ctx context.Context, q Query) (Result, error) {
	prefix := []byte(docKeyPrefix)
	if k := kindFilter(q); k != "" {
		prefix = []byte(docKeyPrefix + string(k) + ":")
	}

	var docs []Document
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc Document
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: badger scan: %w", ErrIndexUnavailable, err)
	}
	return rank(docs, q)
}

// Ping implements Index.
func (b *BadgerIndex) Ping(_ context.Context) error {
	if b.db.IsClosed() {
		return fmt.Errorf("%w: badger closed", ErrIndexUnavailable)
	}
	return nil
}

// Close implements Index.
func (b *BadgerIndex) Close() error {
	if !b.ownsDB {
		return nil
	}
	return b.db.Close()
}

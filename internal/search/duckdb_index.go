// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/pulse/internal/events"
)

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS search_documents (
	id      VARCHAR NOT NULL,
	kind    VARCHAR NOT NULL,
	version BIGINT  NOT NULL,
	deleted BOOLEAN NOT NULL DEFAULT false,
	body    VARCHAR,
	content VARCHAR,
	PRIMARY KEY (kind, id)
)`

// DuckDBIndex stores versioned documents in a DuckDB table and prefilters
// searches with ILIKE.
type DuckDBIndex struct {
	db *sql.DB
}

// OpenDuckDBIndex opens the database at path and creates the table. An empty
// path opens an in-memory database.
func OpenDuckDBIndex(ctx context.Context, path string) (*DuckDBIndex, error) {
	connStr := path
	if connStr == "" {
		connStr = ":memory:"
	}
	connStr += "?autoinstall_known_extensions=false&autoload_known_extensions=false"

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb index: %w", err)
	}
	if _, err := db.ExecContext(ctx, duckdbSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create search_documents: %w", err)
	}
	return &DuckDBIndex{db: db}, nil
}

// Name implements Index.
func (d *DuckDBIndex) Name() string { return EngineDuckDB }

// Put implements Index.
func (d *DuckDBIndex) Put(ctx context.Context, doc Document) error {
	return d.write(ctx, doc)
}

// Delete implements Index. It writes a tombstone carrying version.
func (d *DuckDBIndex) Delete(ctx context.Context, kind events.EntityKind, id string, version int64) error {
	return d.write(ctx, Document{Kind: kind, ID: id, Version: version, Deleted: true})
}

// write is the read-compare-upsert in one transaction.
func (d *DuckDBIndex) write(ctx context.Context, doc Document) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrIndexUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM search_documents WHERE kind = ? AND id = ?`,
		string(doc.Kind), doc.ID,
	).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("%w: read version: %w", ErrIndexUnavailable, err)
	case doc.Version <= stored:
		return ErrIndexConflict
	}

	var body, content sql.NullString
	if !doc.Deleted {
		body = sql.NullString{String: string(doc.Body), Valid: true}
		content = sql.NullString{String: doc.Text(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO search_documents (id, kind, version, deleted, body, content)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			version = excluded.version,
			deleted = excluded.deleted,
			body    = excluded.body,
			content = excluded.content`,
		doc.ID, string(doc.Kind), doc.Version, doc.Deleted, body, content,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert: %w", ErrIndexUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// Get implements Index.
func (d *DuckDBIndex) Get(ctx context.Context, kind events.EntityKind, id string) (Document, error) {
	var (
		doc  = Document{Kind: kind, ID: id}
		body sql.NullString
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT version, deleted, body FROM search_documents WHERE kind = ? AND id = ?`,
		string(kind), id,
	).Scan(&doc.Version, &doc.Deleted, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: get: %w", ErrIndexUnavailable, err)
	}
	if body.Valid {
		doc.Body = []byte(body.String)
	}
	return doc, nil
}

// Search implements Index.
func (d *DuckDBIndex) Search(ctx context.Context, q Query) (Result, error) {
	q = q.normalized()
	if q.Q == "" {
		return Result{Items: []Item{}}, nil
	}

	query := `SELECT kind, id, version, body FROM search_documents
		WHERE NOT deleted AND content ILIKE ? ESCAPE '\'`
	args := []interface{}{"%" + escapeLike(q.Q) + "%"}
	if k := kindFilter(q); k != "" {
		query += ` AND kind = ?`
		args = append(args, string(k))
	}
	query += ` ORDER BY version DESC, kind, id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: search: %w", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc  Document
			kind string
			body sql.NullString
		)
		if err := rows.Scan(&kind, &doc.ID, &doc.Version, &body); err != nil {
			return Result{}, fmt.Errorf("%w: scan: %w", ErrIndexUnavailable, err)
		}
		doc.Kind = events.EntityKind(kind)
		doc.Body = []byte(body.String)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: rows: %w", ErrIndexUnavailable, err)
	}
	return rank(docs, q)
}

// escapeLike escapes LIKE wildcards so q matches literally.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

// Ping implements Index.
func (d *DuckDBIndex) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// Close implements Index.
func (d *DuckDBIndex) Close() error {
	return d.db.Close()
}

// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulse/internal/events"
)

// Post is the indexed schema of a post.
type Post struct {
	ID             events.ID  `json:"id"`
	Content        string     `json:"content"`
	AuthorID       events.ID  `json:"authorId"`
	AuthorUsername string     `json:"authorUsername"`
	Images         []string   `json:"images"`
	LikesCount     int64      `json:"likesCount"`
	CommentsCount  int64      `json:"commentsCount"`
	CreatedAt      Timestamp  `json:"createdAt"`
	UpdatedAt      *Timestamp `json:"updatedAt,omitempty"`
}

// User is the indexed schema of a user.
type User struct {
	ID        events.ID `json:"id"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	Avatar    *string   `json:"avatar"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Module is the indexed schema of a platform module.
type Module struct {
	ID          events.ID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Version     *string   `json:"version"`
	OwnerRoles  []string  `json:"ownerRoles"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// Timestamp decodes either RFC 3339 strings or epoch millis and encodes as
// RFC 3339. A missing or null timestamp encodes as null.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Time)
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("timestamp must be RFC 3339 or epoch millis: %w", err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC())
}

// Field is one searchable text field of a document.
type Field struct {
	Name  string
	Value string
}

// searchableFields lists the highlighted fields of each kind, in output order.
var searchableFields = map[events.EntityKind][]string{
	events.EntityPost:   {"content", "authorUsername"},
	events.EntityUser:   {"username", "nickname"},
	events.EntityModule: {"code", "name", "description"},
}

// Document is a versioned index entry. A deleted document is a tombstone: it
// keeps its version so older upserts cannot bring it back.
type Document struct {
	Kind    events.EntityKind `json:"kind"`
	ID      string            `json:"id"`
	Version int64             `json:"version"`
	Deleted bool              `json:"deleted,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Key identifies the document across kinds.
func (d Document) Key() string {
	return DocKey(d.Kind, d.ID)
}

// DocKey returns the index key of (kind, id).
func DocKey(kind events.EntityKind, id string) string {
	return string(kind) + ":" + id
}

// Fields returns the searchable text fields of d. Tombstones have none.
func (d Document) Fields() ([]Field, error) {
	if d.Deleted || len(d.Body) == 0 {
		return nil, nil
	}
	var values map[string]interface{}
	if err := json.Unmarshal(d.Body, &values); err != nil {
		return nil, fmt.Errorf("decode %s body: %w", d.Key(), err)
	}

	names := searchableFields[d.Kind]
	out := make([]Field, 0, len(names))
	for _, name := range names {
		s, _ := values[name].(string)
		out = append(out, Field{Name: name, Value: s})
	}
	return out, nil
}

// Text joins the searchable fields for engines that match on one column.
func (d Document) Text() string {
	fields, _ := d.Fields()
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Value
	}
	return strings.Join(parts, "\n")
}

// BuildDocument converts an EntityChanged payload into a Document. The
// version is the payload version, or the event time in millis when absent.
func BuildDocument(p events.EntityChangedPayload, ts time.Time) (Document, error) {
	doc := Document{
		Kind:    p.Entity,
		ID:      p.ID,
		Version: p.Version,
	}
	if doc.Version <= 0 {
		doc.Version = ts.UnixMilli()
	}

	if p.Op == events.OpDelete {
		doc.Deleted = true
		return doc, nil
	}

	var schema interface{}
	switch p.Entity {
	case events.EntityPost:
		schema = &Post{}
	case events.EntityUser:
		schema = &User{}
	case events.EntityModule:
		schema = &Module{}
	default:
		return Document{}, fmt.Errorf("unknown entity kind %q", p.Entity)
	}

	if err := json.Unmarshal(p.Snapshot, schema); err != nil {
		return Document{}, fmt.Errorf("decode %s snapshot: %w", p.Entity, err)
	}
	setID(schema, p.ID)

	body, err := json.Marshal(schema)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s body: %w", p.Entity, err)
	}
	doc.Body = body
	return doc, nil
}

// setID makes the body id agree with the event id.
func setID(schema interface{}, id string) {
	switch s := schema.(type) {
	case *Post:
		s.ID = events.ID(id)
	case *User:
		s.ID = events.ID(id)
	case *Module:
		s.ID = events.ID(id)
	}
}

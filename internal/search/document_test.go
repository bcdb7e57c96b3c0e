// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package search

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulse/internal/events"
)

func TestBuildDocument(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1700000000000)

	tests := []struct {
		name        string
		payload     events.EntityChangedPayload
		wantVersion int64
		wantDeleted bool
		wantErr     bool
	}{
		{
			name: "explicit version",
			payload: events.EntityChangedPayload{
				Entity:   events.EntityPost,
				Op:       events.OpUpsert,
				ID:       "42",
				Version:  9,
				Snapshot: json.RawMessage(`{"content":"hi","createdAt":1700000000000}`),
			},
			wantVersion: 9,
		},
		{
			name: "version falls back to event time",
			payload: events.EntityChangedPayload{
				Entity:   events.EntityUser,
				Op:       events.OpUpsert,
				ID:       "7",
				Snapshot: json.RawMessage(`{"username":"amy","createdAt":"2024-01-02T03:04:05Z"}`),
			},
			wantVersion: 1700000000000,
		},
		{
			name: "delete is a tombstone",
			payload: events.EntityChangedPayload{
				Entity:  events.EntityModule,
				Op:      events.OpDelete,
				ID:      "m1",
				Version: 3,
			},
			wantVersion: 3,
			wantDeleted: true,
		},
		{
			name: "malformed snapshot",
			payload: events.EntityChangedPayload{
				Entity:   events.EntityPost,
				Op:       events.OpUpsert,
				ID:       "1",
				Snapshot: json.RawMessage(`{"content":`),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := BuildDocument(tt.payload, ts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BuildDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if doc.Version != tt.wantVersion {
				t.Errorf("Version = %d, want %d", doc.Version, tt.wantVersion)
			}
			if doc.Deleted != tt.wantDeleted {
				t.Errorf("Deleted = %v, want %v", doc.Deleted, tt.wantDeleted)
			}
		})
	}
}

func TestBuildDocument_BodyCarriesEventID(t *testing.T) {
	t.Parallel()

	doc, err := BuildDocument(events.EntityChangedPayload{
		Entity:   events.EntityPost,
		Op:       events.OpUpsert,
		ID:       "42",
		Version:  1,
		Snapshot: json.RawMessage(`{"id":99,"content":"hello","authorUsername":"amy","createdAt":1700000000000}`),
	}, time.Now())
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(doc.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "42" {
		t.Errorf("body id = %v, want 42", body["id"])
	}
	if body["createdAt"] != "2023-11-14T22:13:20Z" {
		t.Errorf("createdAt = %v, want RFC 3339", body["createdAt"])
	}
	if !strings.Contains(doc.Text(), "hello") || !strings.Contains(doc.Text(), "amy") {
		t.Errorf("Text() = %q, want content and author", doc.Text())
	}
}

func TestBuildDocument_KeepsNulls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		entity   events.EntityKind
		snapshot string
		want     map[string]interface{}
	}{
		{
			name:     "user without avatar or createdAt",
			entity:   events.EntityUser,
			snapshot: `{"username":"amy","nickname":"Amy","avatar":null}`,
			want:     map[string]interface{}{"avatar": nil, "createdAt": nil, "username": "amy"},
		},
		{
			name:     "user with avatar",
			entity:   events.EntityUser,
			snapshot: `{"username":"amy","avatar":"https://cdn/a.png","createdAt":1700000000000}`,
			want:     map[string]interface{}{"avatar": "https://cdn/a.png", "createdAt": "2023-11-14T22:13:20Z"},
		},
		{
			name:     "module without version",
			entity:   events.EntityModule,
			snapshot: `{"code":"m","name":"Mod","version":null}`,
			want:     map[string]interface{}{"version": nil, "createdAt": nil},
		},
		{
			name:     "module with version",
			entity:   events.EntityModule,
			snapshot: `{"code":"m","name":"Mod","version":"1.2.0"}`,
			want:     map[string]interface{}{"version": "1.2.0"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := BuildDocument(events.EntityChangedPayload{
				Entity:   tt.entity,
				Op:       events.OpUpsert,
				ID:       "1",
				Version:  1,
				Snapshot: json.RawMessage(tt.snapshot),
			}, time.Now())
			if err != nil {
				t.Fatalf("BuildDocument: %v", err)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(doc.Body, &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			for key, want := range tt.want {
				got, ok := body[key]
				if !ok {
					t.Errorf("body has no %q key: %s", key, doc.Body)
					continue
				}
				if got != want {
					t.Errorf("body[%q] = %v, want %v", key, got, want)
				}
			}
		})
	}
}

func TestHighlight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		q, in, want string
	}{
		{"hello", "hello world", "<em>hello</em> world"},
		{"hello", "HELLO there, Hello", "<em>HELLO</em> there, <em>Hello</em>"},
		{"a.b", "a.b axb", "<em>a.b</em> axb"},
		{"x", "<b>x</b>", "&lt;b&gt;<em>x</em>&lt;/b&gt;"},
		{"zzz", "nothing", "nothing"},
	}
	for _, tt := range tests {
		if got := newMatcher(tt.q).highlight(tt.in); got != tt.want {
			t.Errorf("highlight(%q, %q) = %q, want %q", tt.q, tt.in, got, tt.want)
		}
	}
}

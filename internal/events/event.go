// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package events defines the activity event model shared by every pipeline
// component and the broker envelope codec that produces it.
//
// An ActivityEvent is a closed tagged variant: Type selects exactly one payload
// shape, and the payload is validated when the envelope is decoded rather than
// trusted downstream.
package events

import (
	"time"

	"github.com/goccy/go-json"
)

// EventType is the closed set of activity event tags.
type EventType string

// Event types carried on the broker. The string values are the wire names.
const (
	TypePostCreated   EventType = "post_created"
	TypeLiked         EventType = "liked"
	TypeCommented     EventType = "commented"
	TypePresencePing  EventType = "presence_ping"
	TypeGroupCreated  EventType = "group_created"
	TypeEntityChanged EventType = "entity_changed"
)

// AllTypes lists every EventType in a stable order.
var AllTypes = []EventType{
	TypePostCreated,
	TypeLiked,
	TypeCommented,
	TypePresencePing,
	TypeGroupCreated,
	TypeEntityChanged,
}

// typeAliases maps accepted wire spellings to their canonical type.
var typeAliases = map[string]EventType{
	"post_created":   TypePostCreated,
	"PostCreated":    TypePostCreated,
	"liked":          TypeLiked,
	"Liked":          TypeLiked,
	"commented":      TypeCommented,
	"Commented":      TypeCommented,
	"presence_ping":  TypePresencePing,
	"PresencePing":   TypePresencePing,
	"group_created":  TypeGroupCreated,
	"GroupCreated":   TypeGroupCreated,
	"entity_changed": TypeEntityChanged,
	"EntityChanged":  TypeEntityChanged,
}

// ParseType resolves a wire type name. The second result is false for unknown names.
func ParseType(s string) (EventType, bool) {
	t, ok := typeAliases[s]
	return t, ok
}

// EntityKind identifies which index schema an EntityChanged event targets.
type EntityKind string

const (
	EntityPost   EntityKind = "post"
	EntityUser   EntityKind = "user"
	EntityModule EntityKind = "module"
)

// EntityOp is the change applied to an entity.
type EntityOp string

const (
	OpUpsert EntityOp = "upsert"
	OpDelete EntityOp = "delete"
)

// Payload is implemented by every per-type payload struct.
type Payload interface {
	EventType() EventType
}

// PostCreatedPayload is carried by TypePostCreated.
type PostCreatedPayload struct {
	PostID   string   `json:"postId"`
	Content  string   `json:"content,omitempty"`
	Audience []string `json:"audience,omitempty"`
}

// EventType implements Payload.
func (PostCreatedPayload) EventType() EventType { return TypePostCreated }

// ReactionPayload is carried by TypeLiked and TypeCommented.
type ReactionPayload struct {
	kind        EventType
	PostID      string `json:"postId"`
	RecipientID string `json:"recipientId,omitempty"`
	CommentID   string `json:"commentId,omitempty"`
	Text        string `json:"text,omitempty"`
}

// EventType implements Payload.
func (p ReactionPayload) EventType() EventType { return p.kind }

// PresencePayload is carried by TypePresencePing.
type PresencePayload struct {
	Device string `json:"device,omitempty"`
}

// EventType implements Payload.
func (PresencePayload) EventType() EventType { return TypePresencePing }

// GroupCreatedPayload is carried by TypeGroupCreated and is also the body of
// the group_created socket frame.
type GroupCreatedPayload struct {
	ID           string   `json:"id"`
	Title        *string  `json:"title,omitempty"`
	Avatar       *string  `json:"avatar,omitempty"`
	Participants []string `json:"participants"`
}

// EventType implements Payload.
func (GroupCreatedPayload) EventType() EventType { return TypeGroupCreated }

// EntityChangedPayload is carried by TypeEntityChanged.
// Snapshot holds the entity fields as sent by the owning service.
type EntityChangedPayload struct {
	Entity   EntityKind      `json:"entity"`
	Op       EntityOp        `json:"op"`
	ID       string          `json:"id"`
	Version  int64           `json:"version,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// EventType implements Payload.
func (EntityChangedPayload) EventType() EventType { return TypeEntityChanged }

// ActivityEvent is a decoded broker event. Values are passed by copy and are
// not modified after Decode returns.
type ActivityEvent struct {
	Type         EventType
	ActorID      string
	TargetID     string
	Payload      Payload
	RawPayload   json.RawMessage
	Timestamp    time.Time
	PartitionKey string

	// Partition and Offset locate the event in the source stream.
	Partition int32
	Offset    int64
}

// WithPosition returns a copy of e located at the given partition and offset.
func (e ActivityEvent) WithPosition(partition int32, offset int64) ActivityEvent {
	e.Partition = partition
	e.Offset = offset
	return e
}

// PostCreated returns the payload when e is a TypePostCreated event.
func (e ActivityEvent) PostCreated() (PostCreatedPayload, bool) {
	p, ok := e.Payload.(PostCreatedPayload)
	return p, ok
}

// Reaction returns the payload when e is a TypeLiked or TypeCommented event.
func (e ActivityEvent) Reaction() (ReactionPayload, bool) {
	p, ok := e.Payload.(ReactionPayload)
	return p, ok
}

// GroupCreated returns the payload when e is a TypeGroupCreated event.
func (e ActivityEvent) GroupCreated() (GroupCreatedPayload, bool) {
	p, ok := e.Payload.(GroupCreatedPayload)
	return p, ok
}

// EntityChanged returns the payload when e is a TypeEntityChanged event.
func (e ActivityEvent) EntityChanged() (EntityChangedPayload, bool) {
	p, ok := e.Payload.(EntityChangedPayload)
	return p, ok
}

// Millis returns the event timestamp as epoch milliseconds.
func (e ActivityEvent) Millis() int64 {
	return e.Timestamp.UnixMilli()
}

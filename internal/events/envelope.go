// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package events

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ID is an identifier that may arrive as a JSON number or string.
// It is always normalized to its decimal or literal string form.
type ID string

// UnmarshalJSON accepts numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Envelope is the wire-level wrapper published to the broker.
type Envelope struct {
	Type     string          `json:"type"`
	ActorID  ID              `json:"actorId"`
	TargetID ID              `json:"targetId,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	TS       json.Number     `json:"ts"`
}

// NewEnvelope builds an envelope for publishing. payload is marshaled as-is.
func NewEnvelope(t EventType, actorID, targetID string, payload interface{}, ts time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:     string(t),
		ActorID:  ID(actorID),
		TargetID: ID(targetID),
		Payload:  raw,
		TS:       json.Number(strconv.FormatInt(ts.UnixMilli(), 10)),
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// PartitionKeyOf returns the key used to route an envelope: the target id when
// present, else the actor id.
func PartitionKeyOf(actorID, targetID string) string {
	if targetID != "" {
		return targetID
	}
	return actorID
}

// Decode parses and validates a broker envelope. Any failure is a *DecodeError.
func Decode(data []byte) (ActivityEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ActivityEvent{}, &DecodeError{Reason: "malformed envelope", Err: err}
	}

	t, ok := ParseType(env.Type)
	if !ok {
		return ActivityEvent{}, &DecodeError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", env.Type)}
	}
	if env.ActorID == "" {
		return ActivityEvent{}, &DecodeError{Field: "actorId", Reason: "required"}
	}

	ts, err := parseMillis(env.TS)
	if err != nil {
		return ActivityEvent{}, &DecodeError{Field: "ts", Reason: "must be positive epoch millis", Err: err}
	}

	ev := ActivityEvent{
		Type:         t,
		ActorID:      string(env.ActorID),
		TargetID:     string(env.TargetID),
		RawPayload:   env.Payload,
		Timestamp:    ts,
		PartitionKey: PartitionKeyOf(string(env.ActorID), string(env.TargetID)),
	}

	payload, err := decodePayload(t, ev.TargetID, env.Payload)
	if err != nil {
		return ActivityEvent{}, err
	}
	ev.Payload = payload
	return ev, nil
}

func parseMillis(n json.Number) (time.Time, error) {
	if n == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	ms, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return time.Time{}, err
		}
		ms = int64(f)
	}
	if ms <= 0 {
		return time.Time{}, fmt.Errorf("got %d", ms)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func decodePayload(t EventType, targetID string, raw json.RawMessage) (Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	switch t {
	case TypePostCreated:
		var p struct {
			PostID   ID     `json:"postId"`
			ID       ID     `json:"id"`
			Content  string `json:"content"`
			Audience []ID   `json:"audience"`
		}
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		out := PostCreatedPayload{
			PostID:   firstNonEmpty(string(p.PostID), string(p.ID), targetID),
			Content:  p.Content,
			Audience: idStrings(p.Audience),
		}
		if out.PostID == "" {
			return nil, &DecodeError{Field: "payload.postId", Reason: "required"}
		}
		return out, nil

	case TypeLiked, TypeCommented:
		var p struct {
			PostID      ID     `json:"postId"`
			RecipientID ID     `json:"recipientId"`
			OwnerID     ID     `json:"ownerId"`
			CommentID   ID     `json:"commentId"`
			Text        string `json:"text"`
		}
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		out := ReactionPayload{
			kind:        t,
			PostID:      firstNonEmpty(string(p.PostID), targetID),
			RecipientID: firstNonEmpty(string(p.RecipientID), string(p.OwnerID)),
			CommentID:   string(p.CommentID),
			Text:        p.Text,
		}
		if out.PostID == "" {
			return nil, &DecodeError{Field: "targetId", Reason: "required for reactions"}
		}
		return out, nil

	case TypePresencePing:
		var p PresencePayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		return p, nil

	case TypeGroupCreated:
		var p struct {
			ID           ID      `json:"id"`
			Title        *string `json:"title"`
			Avatar       *string `json:"avatar"`
			Participants []ID    `json:"participants"`
		}
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		out := GroupCreatedPayload{
			ID:           firstNonEmpty(string(p.ID), targetID),
			Title:        p.Title,
			Avatar:       p.Avatar,
			Participants: idStrings(p.Participants),
		}
		if out.ID == "" {
			return nil, &DecodeError{Field: "payload.id", Reason: "required"}
		}
		if len(out.Participants) == 0 {
			return nil, &DecodeError{Field: "payload.participants", Reason: "must not be empty"}
		}
		return out, nil

	case TypeEntityChanged:
		var p struct {
			Entity   EntityKind      `json:"entity"`
			Op       EntityOp        `json:"op"`
			ID       ID              `json:"id"`
			Version  int64           `json:"version"`
			Snapshot json.RawMessage `json:"snapshot"`
		}
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		out := EntityChangedPayload{
			Entity:   p.Entity,
			Op:       p.Op,
			ID:       firstNonEmpty(string(p.ID), targetID),
			Version:  p.Version,
			Snapshot: p.Snapshot,
		}
		switch out.Entity {
		case EntityPost, EntityUser, EntityModule:
		default:
			return nil, &DecodeError{Field: "payload.entity", Reason: fmt.Sprintf("unknown entity %q", out.Entity)}
		}
		switch out.Op {
		case OpUpsert:
			if len(bytes.TrimSpace(out.Snapshot)) == 0 {
				return nil, &DecodeError{Field: "payload.snapshot", Reason: "required for upsert"}
			}
		case OpDelete:
		default:
			return nil, &DecodeError{Field: "payload.op", Reason: fmt.Sprintf("unknown op %q", out.Op)}
		}
		if out.ID == "" {
			return nil, &DecodeError{Field: "payload.id", Reason: "required"}
		}
		return out, nil
	}

	return nil, &DecodeError{Field: "type", Reason: "unhandled event type"}
}

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Field: "payload", Reason: "malformed payload", Err: err}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func idStrings(ids []ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, string(id))
		}
	}
	return out
}

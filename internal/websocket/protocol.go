// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Frame types sent by the server.
const (
	FrameWelcome      = "welcome"
	FrameGroupCreated = "group_created"
	FrameUserActive   = "user_active"
	FramePostCreated  = "post_created"
	FrameLiked        = "liked"
	FrameCommented    = "commented"
	FramePong         = "pong"
	FrameSubscribed   = "subscribed"
	FrameError        = "error"
)

// Frame types sent by clients after authentication.
const (
	ClientPing      = "ping"
	ClientSubscribe = "subscribe"
)

// Close codes.
const (
	// CloseUnauthorized is sent when the auth frame is missing or invalid.
	CloseUnauthorized = websocket.ClosePolicyViolation

	// CloseShutdown is sent to every session when the server stops.
	CloseShutdown = websocket.CloseGoingAway

	// CloseReplaced is sent to a session superseded by a reconnect with the same id.
	CloseReplaced = websocket.CloseNormalClosure
)

// Frame is every server-to-client message: {type, payload, ts}.
type Frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	TS      int64       `json:"ts"`
}

// NewFrame builds a frame stamped with at.
func NewFrame(frameType string, payload interface{}, at time.Time) Frame {
	return Frame{Type: frameType, Payload: payload, TS: at.UnixMilli()}
}

// AuthFrame is the first frame a client must send. SessionID is optional; a
// client resuming after a reconnect sends its previous id.
type AuthFrame struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId,omitempty"`
}

// ClientFrame is any frame sent by an authenticated client.
type ClientFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// WelcomePayload answers a successful auth frame.
type WelcomePayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// ReactionNotice is the payload of liked and commented frames.
type ReactionNotice struct {
	ActorID   string `json:"actorId"`
	PostID    string `json:"postId"`
	CommentID string `json:"commentId,omitempty"`
	Text      string `json:"text,omitempty"`
}

// PostNotice is the payload of post_created frames.
type PostNotice struct {
	ActorID string `json:"actorId"`
	PostID  string `json:"postId"`
	Content string `json:"content,omitempty"`
}

// UserActiveNotice is the payload of user_active frames.
type UserActiveNotice struct {
	UserID       string `json:"userId"`
	LastActiveAt int64  `json:"lastActiveAt"`
}

// ErrorNotice is the payload of error frames.
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

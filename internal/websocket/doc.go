// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package websocket pushes targeted realtime notifications to connected
// client sessions.
//
// # Protocol
//
// A client opens /ws and sends {"token": "..."} as its first frame. On success
// the server answers with a welcome frame; on failure it closes the socket
// with 1008 "unauthorized". Every server frame has the shape
//
//	{"type": "group_created", "payload": {...}, "ts": 1700000000000}
//
// Clients may send {"type":"ping"} to refresh presence and
// {"type":"subscribe","channel":"group:<id>"} for groups they belong to.
//
// # Delivery
//
// Each session has a bounded send queue drained by a single writer goroutine,
// so frames reach a socket in the order they were queued. A full queue drops
// the frame. Users with no live session miss the notification; there is no
// replay.
//
// # Registry
//
// SessionManager maps sessions to users (one user may have many devices) and
// users to groups. A reconnect that reuses a session id replaces the stale
// session of the same user before the new one is registered; a session id
// held by another user is rejected.
package websocket

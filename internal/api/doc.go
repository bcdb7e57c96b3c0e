// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

/*
Package api provides the HTTP surface of Pulse.

Routes:

	GET    /health/live              liveness
	GET    /health/ready             readiness (NATS, search index, presence store)
	GET    /metrics                  Prometheus exposition
	GET    /ws                       WebSocket upgrade (see internal/websocket)
	GET    /api/v1/search            search via query parameters
	POST   /api/v1/search            search via JSON body
	GET    /api/v1/metrics           event counter snapshot
	GET    /api/v1/presence/{userId} last-active time of a user
	GET    /api/v1/dlq               dead letters and DLQ stats
	DELETE /api/v1/dlq/{id}          discard a dead letter

Every endpoint except search answers with the APIResponse envelope:

	{"status":"success","data":{...},"metadata":{"timestamp":"...","request_id":"..."}}
	{"status":"error","error":{"code":"BAD_REQUEST","message":"..."},"metadata":{...}}

Search returns the bare page {"items":[...],"total":N} so clients can page
without unwrapping.

The /api/v1 group is rate limited per client IP with go-chi/httprate and
records request latency by route pattern.
*/
package api

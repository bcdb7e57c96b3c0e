// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulse/internal/eventprocessor"
	"github.com/tomtom215/pulse/internal/events"
	"github.com/tomtom215/pulse/internal/metrics"
	"github.com/tomtom215/pulse/internal/search"
	"github.com/tomtom215/pulse/internal/validation"
)

type fakeSearcher struct {
	got    search.Query
	result search.Result
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) (search.Result, error) {
	f.got = q
	return f.result, f.err
}

type fakeMetrics struct{ snap metrics.Snapshot }

func (f fakeMetrics) Snapshot() metrics.Snapshot { return f.snap }

type fakePresence map[string]time.Time

func (f fakePresence) LastActive(userID string) (time.Time, bool) {
	ts, ok := f[userID]
	return ts, ok
}

type fakePresenceStore struct {
	times map[string]time.Time
	err   error
}

func (f fakePresenceStore) LastActive(_ context.Context, userID string) (time.Time, error) {
	return f.times[userID], f.err
}

func newTestRouter(deps HandlerDeps) http.Handler {
	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitDisabled = true
	return NewRouter(NewHandler(deps), NewMiddleware(cfg), nil)
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func TestSearch_GET(t *testing.T) {
	fs := &fakeSearcher{result: search.Result{
		Items: []search.Item{{"id": "p1", "title": "<em>go</em>lang"}},
		Total: 7,
	}}
	router := newTestRouter(HandlerDeps{Search: fs})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search?q=go&limit=1&offset=2&kind=post", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var res search.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Total != 7 || len(res.Items) != 1 {
		t.Errorf("result = %+v", res)
	}
	want := search.Query{Q: "go", Limit: 1, Offset: 2, Kind: "post"}
	if fs.got != want {
		t.Errorf("query = %+v, want %+v", fs.got, want)
	}
}

func TestSearch_POST(t *testing.T) {
	fs := &fakeSearcher{}
	router := newTestRouter(HandlerDeps{Search: fs})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/search", `{"q":"alice","engine":"badger","limit":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if fs.got.Q != "alice" || fs.got.Engine != "badger" || fs.got.Limit != 5 {
		t.Errorf("query = %+v", fs.got)
	}
	// Nil items are rendered as an empty array.
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("body = %s, want empty items array", rec.Body.String())
	}
}

func TestSearch_BadRequests(t *testing.T) {
	router := newTestRouter(HandlerDeps{Search: &fakeSearcher{}})

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode string
	}{
		{"missing q", http.MethodGet, "/api/v1/search", "", validation.ErrCodeValidation},
		{"non-integer limit", http.MethodGet, "/api/v1/search?q=x&limit=ten", "", ErrCodeBadRequest},
		{"limit too large", http.MethodGet, "/api/v1/search?q=x&limit=1000", "", validation.ErrCodeValidation},
		{"negative offset", http.MethodGet, "/api/v1/search?q=x&offset=-1", "", validation.ErrCodeValidation},
		{"unknown engine", http.MethodGet, "/api/v1/search?q=x&engine=lucene", "", validation.ErrCodeValidation},
		{"unknown kind", http.MethodGet, "/api/v1/search?q=x&kind=comment", "", validation.ErrCodeValidation},
		{"malformed body", http.MethodPost, "/api/v1/search", `{"q":`, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			resp := decodeEnvelope(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestSearch_EngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"engine disabled", search.ErrUnknownEngine, http.StatusBadRequest},
		{"index unavailable", search.ErrIndexUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(HandlerDeps{Search: &fakeSearcher{err: tt.err}})
			rec := doRequest(t, router, http.MethodGet, "/api/v1/search?q=x&engine=duckdb", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestSearch_NotConfigured(t *testing.T) {
	router := newTestRouter(HandlerDeps{})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/search?q=x", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	snap := metrics.Snapshot{
		EventsReceived: 3,
		EventsFailed:   1,
		PerType:        map[events.EventType]uint64{events.TypePostCreated: 3},
	}
	router := newTestRouter(HandlerDeps{Metrics: fakeMetrics{snap: snap}})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Status string           `json:"status"`
		Data   metrics.Snapshot `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" || resp.Data.EventsReceived != 3 || resp.Data.EventsFailed != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Data.PerType[events.TypePostCreated] != 3 {
		t.Errorf("per type = %v", resp.Data.PerType)
	}
}

func TestPresence(t *testing.T) {
	memTime := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	storeTime := memTime.Add(-time.Hour)

	deps := HandlerDeps{
		Presence:      fakePresence{"alice": memTime},
		PresenceStore: fakePresenceStore{times: map[string]time.Time{"alice": storeTime, "bob": storeTime}},
	}
	router := newTestRouter(deps)

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) PresenceResponse {
		t.Helper()
		var resp struct {
			Data PresenceResponse `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.Data
	}

	t.Run("memory wins", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/api/v1/presence/alice", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		got := decode(t, rec)
		if !got.Active || got.Source != "memory" || !got.LastActiveAt.Equal(memTime) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("store fallback", func(t *testing.T) {
		got := decode(t, doRequest(t, router, http.MethodGet, "/api/v1/presence/bob", ""))
		if !got.Active || got.Source != "store" || !got.LastActiveAt.Equal(storeTime) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		got := decode(t, doRequest(t, router, http.MethodGet, "/api/v1/presence/carol", ""))
		if got.Active || got.LastActiveAt != nil || got.UserID != "carol" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("store error", func(t *testing.T) {
		r := newTestRouter(HandlerDeps{PresenceStore: fakePresenceStore{err: errors.New("redis down")}})
		rec := doRequest(t, r, http.MethodGet, "/api/v1/presence/bob", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/api/v1/presence/"+strings.Repeat("x", 200), "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestDeadLetters(t *testing.T) {
	dlq := eventprocessor.NewDLQ(eventprocessor.DLQConfig{}, nil)
	dlq.Add(&eventprocessor.DeadLetter{ID: "dl-1", Handler: "search-indexer", EventType: events.TypePostCreated})
	dlq.Add(&eventprocessor.DeadLetter{ID: "dl-2", Handler: "presence", EventType: events.TypePresencePing})
	router := newTestRouter(HandlerDeps{DLQ: dlq})

	t.Run("list", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/api/v1/dlq", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Data DLQListResponse `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Data.Entries) != 2 || resp.Data.Stats.Entries != 2 {
			t.Errorf("data = %+v", resp.Data)
		}
	})

	t.Run("filter by handler", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/api/v1/dlq?handler=presence", "")
		var resp struct {
			Data DLQListResponse `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Data.Entries) != 1 || resp.Data.Entries[0].ID != "dl-2" {
			t.Errorf("entries = %+v", resp.Data.Entries)
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodDelete, "/api/v1/dlq/dl-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if dlq.Get("dl-1") != nil {
			t.Error("dl-1 still present")
		}

		rec = doRequest(t, router, http.MethodDelete, "/api/v1/dlq/dl-1", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("second delete status = %d, want 404", rec.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	ok := ReadinessCheck{Name: "nats", Check: func(context.Context) error { return nil }}
	bad := ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial refused") }}
	slow := ReadinessCheck{Name: "search", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	t.Run("live", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(HandlerDeps{Checks: []ReadinessCheck{bad}}), http.MethodGet, "/health/live", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("ready", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(HandlerDeps{Checks: []ReadinessCheck{ok}}), http.MethodGet, "/health/ready", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		rec := doRequest(t, newTestRouter(HandlerDeps{Checks: []ReadinessCheck{ok, bad}}), http.MethodGet, "/health/ready", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "dial refused") {
			t.Errorf("body = %s, want failing check detail", rec.Body.String())
		}
	})

	t.Run("check timeout", func(t *testing.T) {
		r := newTestRouter(HandlerDeps{Checks: []ReadinessCheck{slow}, CheckTimeout: 20 * time.Millisecond})
		start := time.Now()
		rec := doRequest(t, r, http.MethodGet, "/health/ready", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
		if time.Since(start) > time.Second {
			t.Error("readiness check did not honor its timeout")
		}
	})
}

func TestNotFound(t *testing.T) {
	rec := doRequest(t, newTestRouter(HandlerDeps{}), http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", resp.Error)
	}
}

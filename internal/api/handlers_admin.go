// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pulse/internal/eventprocessor"
	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/validation"
)

// MetricsSnapshot handles GET /api/v1/metrics.
func (h *Handler) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Metrics are not configured", nil, nil)
		return
	}
	respondSuccess(w, r, h.metrics.Snapshot())
}

// PresenceResponse is the body of GET /api/v1/presence/{userId}.
type PresenceResponse struct {
	UserID       string     `json:"userId"`
	Active       bool       `json:"active"`
	LastActiveAt *time.Time `json:"lastActiveAt,omitempty"`
	Source       string     `json:"source,omitempty"` // "memory" or "store"
}

type presenceRequest struct {
	UserID string `json:"userId" validate:"identifier"`
}

// Presence handles GET /api/v1/presence/{userId}. The batcher's in-memory
// record wins; the store is consulted for users not seen by this process.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	req := presenceRequest{UserID: chi.URLParam(r, "userId")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}
	if h.presence == nil && h.presenceStore == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Presence is not configured", nil, nil)
		return
	}

	resp := PresenceResponse{UserID: req.UserID}
	if h.presence != nil {
		if ts, ok := h.presence.LastActive(req.UserID); ok {
			resp.Active, resp.LastActiveAt, resp.Source = true, &ts, "memory"
			respondSuccess(w, r, resp)
			return
		}
	}
	if h.presenceStore != nil {
		ts, err := h.presenceStore.LastActive(r.Context(), req.UserID)
		if err != nil {
			respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Presence store unavailable", nil, err)
			return
		}
		if !ts.IsZero() {
			resp.Active, resp.LastActiveAt, resp.Source = true, &ts, "store"
		}
	}
	respondSuccess(w, r, resp)
}

// DLQListResponse is the body of GET /api/v1/dlq.
type DLQListResponse struct {
	Entries []*eventprocessor.DeadLetter `json:"entries"`
	Stats   eventprocessor.DLQStats      `json:"stats"`
}

// ListDeadLetters handles GET /api/v1/dlq. The optional handler query
// parameter filters by handler name.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.dlq == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "DLQ is not configured", nil, nil)
		return
	}

	handler := r.URL.Query().Get("handler")
	entries := h.dlq.List()
	out := make([]*eventprocessor.DeadLetter, 0, len(entries))
	for _, dl := range entries {
		if handler == "" || dl.Handler == handler {
			out = append(out, dl)
		}
	}
	respondSuccess(w, r, DLQListResponse{Entries: out, Stats: h.dlq.Stats()})
}

type deadLetterRequest struct {
	ID string `json:"id" validate:"identifier"`
}

// DeleteDeadLetter handles DELETE /api/v1/dlq/{id}.
func (h *Handler) DeleteDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.dlq == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "DLQ is not configured", nil, nil)
		return
	}
	req := deadLetterRequest{ID: chi.URLParam(r, "id")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}

	dl := h.dlq.Get(req.ID)
	if dl == nil || !h.dlq.Remove(req.ID) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Dead letter not found", nil, nil)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("dead_letter_id", req.ID).
		Str("handler", dl.Handler).
		Msg("Dead letter removed")
	respondSuccess(w, r, map[string]interface{}{"removed": req.ID})
}

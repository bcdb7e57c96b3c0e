// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the chi router. ws serves the WebSocket upgrade at /ws and
// may be nil when the gateway is disabled.
func NewRouter(h *Handler, mw *Middleware, ws http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	if ws != nil {
		r.Handle("/ws", ws)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(RequestMetrics())

		r.Get("/search", h.Search)
		r.Post("/search", h.Search)
		r.Get("/metrics", h.MetricsSnapshot)
		r.Get("/presence/{userId}", h.Presence)

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", h.ListDeadLetters)
			r.Delete("/{id}", h.DeleteDeadLetter)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil, nil)
	})
	return r
}

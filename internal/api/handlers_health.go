// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package api

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	Status string                 `json:"status"` // "ready" or "not_ready"
	Checks map[string]CheckResult `json:"checks"`
}

// HealthReady handles readiness probe requests. Every check runs
// concurrently with its own timeout; any failure yields 503.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]CheckResult, len(h.checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range h.checks {
		wg.Add(1)
		go func(c ReadinessCheck) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
			defer cancel()

			res := CheckResult{Healthy: true}
			if err := c.Check(ctx); err != nil {
				res = CheckResult{Healthy: false, Error: err.Error()}
			}
			mu.Lock()
			results[c.Name] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	resp := ReadyResponse{Status: "ready", Checks: results}
	status := http.StatusOK
	for _, res := range results {
		if !res.Healthy {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			break
		}
	}

	if status != http.StatusOK {
		respondError(w, r, status, ErrCodeServiceUnavailable, "Service is not ready",
			map[string]interface{}{"checks": results}, nil)
		return
	}
	respondSuccess(w, r, resp)
}

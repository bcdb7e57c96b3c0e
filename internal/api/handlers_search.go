// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/search"
	"github.com/tomtom215/pulse/internal/validation"
)

// maxSearchBody bounds POST /api/v1/search bodies.
const maxSearchBody = 16 << 10

// Search handles GET and POST /api/v1/search.
//
// GET takes q, limit, offset, engine and kind as query parameters; POST takes
// the same fields as a JSON object. The response is {items, total}.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Search is not configured", nil, nil)
		return
	}

	q, err := parseSearchQuery(w, r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil, nil)
		return
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}

	res, err := h.search.Search(r.Context(), q)
	switch {
	case err == nil:
	case errors.Is(err, search.ErrUnknownEngine):
		respondError(w, r, http.StatusBadRequest, validation.ErrCodeValidation, "engine is not enabled", map[string]interface{}{"field": "engine"}, nil)
		return
	case errors.Is(err, search.ErrIndexUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Search index unavailable", nil, err)
		return
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Search failed", nil, err)
		return
	}

	if res.Items == nil {
		res.Items = []search.Item{}
	}
	logging.Ctx(r.Context()).Debug().
		Str("engine", q.Engine).
		Int("total", res.Total).
		Msg("Search served")
	writeJSON(w, http.StatusOK, res)
}

var errBadSearchBody = errors.New("request body must be a JSON search query")

func parseSearchQuery(w http.ResponseWriter, r *http.Request) (search.Query, error) {
	var q search.Query
	if r.Method == http.MethodPost {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
		if err := dec.Decode(&q); err != nil {
			return q, errBadSearchBody
		}
		return q, nil
	}

	params := r.URL.Query()
	q.Q = params.Get("q")
	q.Engine = params.Get("engine")
	q.Kind = params.Get("kind")

	var err error
	if q.Limit, err = intParam(params.Get("limit")); err != nil {
		return q, errors.New("limit must be an integer")
	}
	if q.Offset, err = intParam(params.Get("offset")); err != nil {
		return q, errors.New("offset must be an integer")
	}
	return q, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

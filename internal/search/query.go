// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package search

import (
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pulse/internal/events"
)

const (
	// DefaultLimit applies when a query sets no limit.
	DefaultLimit = 20

	// MaxLimit caps the page size.
	MaxLimit = 100
)

// Query is a search request. Kind optionally restricts results to one entity kind.
type Query struct {
	Q      string `json:"q" validate:"required,min=1,max=256"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `json:"offset" validate:"min=0"`
	Engine string `json:"engine" validate:"omitempty,oneof=badger duckdb"`
	Kind   string `json:"kind" validate:"omitempty,oneof=post user module"`
}

// normalized applies defaults and bounds.
func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Q = strings.TrimSpace(q.Q)
	return q
}

// Item is one search hit: the document fields, "kind", the index version
// under "_version" and a "<field>Highlight" entry for every field that
// matched. Schema fields are never overwritten.
type Item map[string]interface{}

// Keys added to every Item next to the schema fields.
const (
	ItemKindKey    = "kind"
	ItemVersionKey = "_version"
)

// Result is a page of hits. Total counts every match before pagination.
type Result struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// matcher finds case-insensitive substring matches of a query.
type matcher struct {
	re *regexp.Regexp
}

func newMatcher(q string) *matcher {
	return &matcher{re: regexp.MustCompile("(?i)" + regexp.QuoteMeta(q))}
}

func (m *matcher) matches(s string) bool {
	return s != "" && m.re.MatchString(s)
}

// highlight wraps every match in <em>...</em>. The text between and inside
// matches is HTML-escaped.
func (m *matcher) highlight(s string) string {
	locs := m.re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return html.EscapeString(s)
	}

	var b strings.Builder
	prev := 0
	for _, loc := range locs {
		b.WriteString(html.EscapeString(s[prev:loc[0]]))
		b.WriteString("<em>")
		b.WriteString(html.EscapeString(s[loc[0]:loc[1]]))
		b.WriteString("</em>")
		prev = loc[1]
	}
	b.WriteString(html.EscapeString(s[prev:]))
	return b.String()
}

// rank filters candidates to live documents matching q, builds highlighted
// items ordered by version descending then id, and paginates.
func rank(candidates []Document, q Query) (Result, error) {
	q = q.normalized()
	if q.Q == "" {
		return Result{Items: []Item{}}, nil
	}
	m := newMatcher(q.Q)

	type hit struct {
		doc  Document
		item Item
	}
	var hits []hit

	for _, doc := range candidates {
		if doc.Deleted {
			continue
		}
		if q.Kind != "" && string(doc.Kind) != q.Kind {
			continue
		}
		fields, err := doc.Fields()
		if err != nil {
			return Result{}, err
		}

		var highlights map[string]string
		for _, f := range fields {
			if m.matches(f.Value) {
				if highlights == nil {
					highlights = make(map[string]string, len(fields))
				}
				highlights[f.Name+"Highlight"] = m.highlight(f.Value)
			}
		}
		if highlights == nil {
			continue
		}

		item, err := itemOf(doc)
		if err != nil {
			return Result{}, err
		}
		for k, v := range highlights {
			item[k] = v
		}
		hits = append(hits, hit{doc: doc, item: item})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].doc.Version != hits[j].doc.Version {
			return hits[i].doc.Version > hits[j].doc.Version
		}
		return hits[i].doc.Key() < hits[j].doc.Key()
	})

	res := Result{Items: []Item{}, Total: len(hits)}
	if q.Offset >= len(hits) {
		return res, nil
	}
	end := q.Offset + q.Limit
	if end > len(hits) {
		end = len(hits)
	}
	for _, h := range hits[q.Offset:end] {
		res.Items = append(res.Items, h.item)
	}
	return res, nil
}

func itemOf(doc Document) (Item, error) {
	item := Item{}
	if err := json.Unmarshal(doc.Body, &item); err != nil {
		return nil, err
	}
	item[ItemKindKey] = doc.Kind
	item[ItemVersionKey] = doc.Version
	return item, nil
}

// kindFilter returns the entity kind a query is restricted to, or "".
func kindFilter(q Query) events.EntityKind {
	return events.EntityKind(q.Kind)
}

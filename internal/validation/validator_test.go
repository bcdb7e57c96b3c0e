// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package validation

import (
	"strings"
	"testing"
)

type searchRequest struct {
	Q      string `json:"q" validate:"required,min=1,max=256"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `json:"offset" validate:"min=0"`
	Engine string `json:"engine" validate:"omitempty,oneof=badger duckdb"`
}

type idRequest struct {
	UserID string `json:"userId" validate:"identifier"`
}

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     interface{}
		wantField string
		wantTag   string
	}{
		{name: "valid search", input: &searchRequest{Q: "hello", Limit: 20}},
		{name: "zero limit means default", input: &searchRequest{Q: "hello"}},
		{name: "missing q", input: &searchRequest{Limit: 5}, wantField: "q", wantTag: "required"},
		{name: "limit too large", input: &searchRequest{Q: "x", Limit: 101}, wantField: "limit", wantTag: "max"},
		{name: "negative offset", input: &searchRequest{Q: "x", Offset: -1}, wantField: "offset", wantTag: "min"},
		{name: "unknown engine", input: &searchRequest{Q: "x", Engine: "lucene"}, wantField: "engine", wantTag: "oneof"},
		{name: "valid id", input: &idRequest{UserID: "user-42"}},
		{name: "id with space", input: &idRequest{UserID: "user 42"}, wantField: "userId", wantTag: "identifier"},
		{name: "empty id", input: &idRequest{}, wantField: "userId", wantTag: "identifier"},
		{name: "id too long", input: &idRequest{UserID: strings.Repeat("a", 129)}, wantField: "userId", wantTag: "identifier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() = nil, want failure on %s", tt.wantField)
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("errors = %d, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("failure = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	single := ValidateStruct(&searchRequest{Q: "x", Limit: 500}).ToAPIError()
	if single.Code != ErrCodeValidation {
		t.Errorf("Code = %q, want %q", single.Code, ErrCodeValidation)
	}
	if single.Message != "limit must be at most 100" {
		t.Errorf("Message = %q", single.Message)
	}
	if single.Details["field"] != "limit" {
		t.Errorf("Details = %v", single.Details)
	}

	multi := ValidateStruct(&searchRequest{Limit: 500, Engine: "x"}).ToAPIError()
	fields, ok := multi.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 3 {
		t.Fatalf("Details[fields] = %v, want 3 entries", multi.Details["fields"])
	}
	if !strings.Contains(multi.Message, "q is required") {
		t.Errorf("Message = %q, want it to mention q", multi.Message)
	}
}

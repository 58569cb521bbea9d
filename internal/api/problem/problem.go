// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package problem writes RFC 7807 Problem Details responses: a stable
// urn:ticketing:inventory:{kind} type, a numeric status, and kind-specific
// extension fields (conflictSeatIds and the like), never a bare error string.
package problem

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/problem+json"

const urnPrefix = "urn:ticketing:inventory:"

// Details is the wire shape of a Problem Details document. Extra carries
// kind-specific fields (e.g. conflictSeatIds) merged into the top-level
// object on write; reserved keys in Extra are dropped rather than allowed
// to shadow type/title/status/detail.
type Details struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Extra  map[string]any `json:"-"`
}

var reserved = map[string]struct{}{
	"type": {}, "title": {}, "status": {}, "detail": {},
}

// Type builds the urn:ticketing:inventory:{kind} type URI for a problem kind
// token (e.g. "conflict", "not-found", "validation").
func Type(kind string) string {
	return urnPrefix + kind
}

// Write serializes a Problem Details document to w with the RFC 7807
// content type and the given HTTP status.
func Write(w http.ResponseWriter, status int, d Details) {
	d.Status = status

	body := map[string]any{
		"type":   d.Type,
		"title":  d.Title,
		"status": d.Status,
	}
	if d.Detail != "" {
		body["detail"] = d.Detail
	}
	for k, v := range d.Extra {
		if _, blocked := reserved[k]; blocked {
			continue
		}
		body[k] = v
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"

	"github.com/ticketing/seatlock/internal/api/problem"
	"github.com/ticketing/seatlock/internal/holderr"
)

// kindMapping is one row of the Kind -> (status, problem type, title) table.
// Never branch on a Kind by string comparison outside this table.
type kindMapping struct {
	status int
	kind   string
	title  string
}

var kindTable = map[holderr.Kind]kindMapping{
	holderr.KindValidation:           {http.StatusUnprocessableEntity, "validation", "request failed validation"},
	holderr.KindConflict:             {http.StatusConflict, "conflict", "seats unavailable"},
	holderr.KindStale:                {http.StatusConflict, "expired", "fencing token no longer current"},
	holderr.KindNotFound:             {http.StatusNotFound, "not-found", "hold or seat not found"},
	holderr.KindIdempotencyMismatch:  {http.StatusUnprocessableEntity, "invalid-idempotency-key", "idempotency key reused with a different request"},
	holderr.KindRateLimited:          {http.StatusTooManyRequests, "rate-limited", "per-owner request budget exceeded"},
	holderr.KindTimeout:              {http.StatusGatewayTimeout, "timeout", "operation deadline exceeded"},
	holderr.KindStorageError:         {http.StatusServiceUnavailable, "storage-unavailable", "storage substrate unavailable"},
	holderr.KindInternal:             {http.StatusInternalServerError, "internal", "internal invariant violation"},
}

// writeHoldError writes the Problem Details representation of err. err that
// is not a *holderr.Error is treated as KindInternal, never leaking its
// underlying message verbatim.
func writeHoldError(w http.ResponseWriter, err error) {
	var he *holderr.Error
	if !errors.As(err, &he) {
		problem.Write(w, http.StatusInternalServerError, problem.Details{
			Type:  problem.Type("internal"),
			Title: "internal invariant violation",
		})
		return
	}

	m, ok := kindTable[he.Kind]
	if !ok {
		m = kindMapping{http.StatusInternalServerError, "internal", "internal invariant violation"}
	}
	// HOLD_GONE is a NotFound whose hold once existed: the wire contract
	// distinguishes this as 410 Gone rather than a plain 404.
	if he.Code == "HOLD_GONE" {
		m = kindMapping{http.StatusGone, "expired", "hold is no longer active"}
	}

	extra := map[string]any{}
	if he.Code != "" {
		extra["code"] = he.Code
	}
	if len(he.Seats) > 0 {
		extra["conflictSeatIds"] = he.Seats
	}

	d := problem.Details{
		Type:   problem.Type(m.kind),
		Title:  m.title,
		Detail: he.Message,
		Extra:  extra,
	}
	if he.Kind == holderr.KindRateLimited {
		w.Header().Set("Retry-After", "60")
	}
	problem.Write(w, m.status, d)
}

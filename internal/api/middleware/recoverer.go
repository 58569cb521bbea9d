// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/ticketing/seatlock/internal/log"
)

// Recoverer turns a panic in any downstream handler into a 500 instead of
// taking down the whole server, logging the stack at error level.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.L().Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("api: recovered from panic")
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"type":"urn:ticketing:inventory:internal","title":"internal invariant violation","status":500}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

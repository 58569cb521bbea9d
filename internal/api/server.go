// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api implements the Seat Lock Engine's thin HTTP transport shim:
// chi routing over /v1/holds and /performances/{pid}/availability, Problem
// Details error responses, and nothing else. Auth and tenant-header
// validation as a security boundary are out of scope; the shim trusts an
// already-validated X-Tenant-Id and only parses the spec'd wire bodies
// before calling the Hold Coordinator / Availability Projector.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ticketing/seatlock/internal/api/middleware"
	"github.com/ticketing/seatlock/internal/availability"
	"github.com/ticketing/seatlock/internal/hold"
	"github.com/ticketing/seatlock/internal/holderr"
	"github.com/ticketing/seatlock/internal/metrics"
)

// outcomeOf classifies err for the sle_hold_operations_total outcome label.
// Never feeds the raw error message into a label: that would be unbounded
// cardinality, exactly what the metrics discipline forbids.
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var he *holderr.Error
	if errors.As(err, &he) {
		return he.Kind.String()
	}
	return "internal"
}

func observe(tenant, operation string, start time.Time, err error) {
	metrics.ObserveHoldOperation(tenant, operation, outcomeOf(err), start)
}

const (
	headerTenant  = "X-Tenant-Id"
	headerIdemKey = "Idempotency-Key"
	headerIfMatch = "If-Match"
)

// Server wires the Hold Coordinator and Availability Projector to chi
// routes implementing the wire format named in the source specification.
type Server struct {
	Coordinator *hold.Coordinator
	Projector   *availability.Projector
	ServiceName string
}

// Router builds the chi.Mux serving every route this package implements.
func (s *Server) Router() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{TracingService: s.ServiceName})

	r.Route("/v1/holds", func(r chi.Router) {
		r.Post("/", s.handleAcquire)
		r.Patch("/", s.handleExtend)
		r.Delete("/{id}", s.handleRelease)
	})
	r.Route("/performances/{pid}", func(r chi.Router) {
		r.Get("/availability", s.handleAvailability)
		r.Get("/availability/stream", s.handleAvailabilityStream)
	})
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.Header.Get(headerTenant)
	if tenant == "" {
		writeHoldError(w, holderr.New(holderr.KindValidation, "TENANT_HEADER_REQUIRED", headerTenant+" header is required"))
		return "", false
	}
	return tenant, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeHoldError(w, holderr.Wrap(holderr.KindValidation, "MALFORMED_BODY", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// checkIfMatch enforces the optional If-Match precondition: when present,
// it must equal the fencing token derived from the caller-supplied
// (version, owner) pair, independent of and in addition to the
// Coordinator's own ownership/version check.
func checkIfMatch(r *http.Request, version int64, owner string) error {
	want := r.Header.Get(headerIfMatch)
	if want == "" {
		return nil
	}
	if want != hold.FencingToken(version, owner) {
		return holderr.New(holderr.KindStale, "IF_MATCH_MISMATCH", "If-Match does not match the current fencing token")
	}
	return nil
}

type acquireBody struct {
	PerformanceID string   `json:"performance_id"`
	Seats         []string `json:"seats"`
	TTLSeconds    int64    `json:"ttl_seconds"`
	Owner         string   `json:"owner"`
}

type acquireResponse struct {
	HoldID    string    `json:"hold_id"`
	Version   int64     `json:"version"`
	ExpiresAt time.Time `json:"expires_at"`
	Seats     []string  `json:"seats"`
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var body acquireBody
	if !decodeJSON(w, r, &body) {
		return
	}

	start := time.Now()
	h, err := s.Coordinator.Acquire(r.Context(), hold.AcquireRequest{
		Tenant:      tenant,
		Performance: body.PerformanceID,
		Seats:       body.Seats,
		Owner:       body.Owner,
		TTL:         time.Duration(body.TTLSeconds) * time.Second,
		IdemKey:     r.Header.Get(headerIdemKey),
	})
	observe(tenant, "acquire", start, err)
	if err != nil {
		writeHoldError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acquireResponse{
		HoldID: h.HoldID, Version: h.Version, ExpiresAt: h.ExpiresAt, Seats: h.Seats,
	})
}

type extendBody struct {
	PerformanceID     string `json:"performance_id"`
	HoldToken         string `json:"hold_token"`
	Owner             string `json:"owner"`
	Version           int64  `json:"version"`
	AdditionalSeconds int64  `json:"additional_seconds"`
}

type extendResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var body extendBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := checkIfMatch(r, body.Version, body.Owner); err != nil {
		writeHoldError(w, err)
		return
	}

	start := time.Now()
	h, err := s.Coordinator.Extend(r.Context(), hold.ExtendRequest{
		Tenant:     tenant,
		HoldID:     body.HoldToken,
		Owner:      body.Owner,
		Version:    body.Version,
		Additional: time.Duration(body.AdditionalSeconds) * time.Second,
	})
	observe(tenant, "extend", start, err)
	if err != nil {
		writeHoldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extendResponse{ExpiresAt: h.ExpiresAt})
}

type releaseResponse struct {
	ReleasedSeats []string `json:"released_seats"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	holdID := chi.URLParam(r, "id")
	q := r.URL.Query()
	owner := q.Get("owner")
	version := parseInt64(q.Get("version"))

	if err := checkIfMatch(r, version, owner); err != nil {
		writeHoldError(w, err)
		return
	}

	start := time.Now()
	h, err := s.Coordinator.Release(r.Context(), hold.ReleaseRequest{
		Tenant:  tenant,
		HoldID:  holdID,
		Owner:   owner,
		Version: version,
		Reason:  "caller_requested",
	})
	observe(tenant, "release", start, err)
	if err != nil {
		writeHoldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, releaseResponse{ReleasedSeats: h.Seats})
}

func parseInt64(s string) int64 {
	var v int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	return v
}

type availabilityResponse struct {
	Seats []availability.SeatStatus `json:"seats"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	pid := chi.URLParam(r, "pid")
	owner := r.URL.Query().Get("owner")

	seats, err := s.Projector.Snapshot(r.Context(), tenant, pid, owner)
	if err != nil {
		writeHoldError(w, holderr.Wrap(holderr.KindStorageError, "SNAPSHOT_FAILED", err))
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Seats: seats})
}

// handleAvailabilityStream serves a text/event-stream of seat lifecycle
// events for one performance. A subscriber that detects a sequence gap is
// expected to call GET .../availability again and resume from there; this
// handler does not backfill missed events.
func (s *Server) handleAvailabilityStream(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	pid := chi.URLParam(r, "pid")

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeHoldError(w, holderr.New(holderr.KindInternal, "STREAM_NOT_SUPPORTED", "response writer does not support flushing"))
		return
	}

	sub, err := s.Projector.Stream(r.Context(), tenant, pid)
	if err != nil {
		writeHoldError(w, holderr.Wrap(holderr.KindStorageError, "STREAM_SUBSCRIBE_FAILED", err))
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-sub.C():
			if !open {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: " + msg.Kind + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics defines the Seat Lock Engine's Prometheus instrumentation.
// Every vector is labeled by tenant_id, operation (or ledger command), and/or
// outcome only —
// never by seat_id or hold_id, which would blow up cardinality under normal
// traffic and leak per-ticket identifiers into a shared metrics backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HoldOperations counts every Coordinator call by operation and outcome
	// ("ok", or the holderr Kind string: validation|conflict|stale|not-found|
	// invalid-idempotency-key|rate-limited|timeout|storage-error|internal|unknown).
	HoldOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_hold_operations_total",
		Help: "Hold Coordinator operations by tenant, operation, and outcome.",
	}, []string{"tenant_id", "operation", "outcome"})

	// HoldOperationDuration tracks end-to-end Coordinator latency.
	HoldOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sle_hold_operation_duration_seconds",
		Help:    "Hold Coordinator operation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tenant_id", "operation"})

	// LedgerCommands counts every Lock Ledger script invocation by outcome
	// (ok|conflict|noop|error; a timed-out invocation counts as error).
	LedgerCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_ledger_commands_total",
		Help: "Lock Ledger script invocations by command and outcome.",
	}, []string{"command", "outcome"})

	// BusPublishDropped counts events dropped by a full MemoryBus ring
	// buffer, the drop-oldest backpressure policy's visible counter.
	BusPublishDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_bus_publish_dropped_total",
		Help: "Events dropped by Event Bus Adapter backpressure, by tenant.",
	}, []string{"tenant_id"})

	// ReaperSweeps counts Expiry Reaper passes by outcome (ok|error).
	ReaperSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_reaper_sweeps_total",
		Help: "Expiry Reaper sweep passes by outcome.",
	}, []string{"outcome"})

	// ReaperExpiredSeats counts seats transitioned to EXPIRED by the Reaper.
	ReaperExpiredSeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_reaper_expired_seats_total",
		Help: "Seats transitioned to EXPIRED by the Expiry Reaper, by tenant.",
	}, []string{"tenant_id"})

	// IdempotencyReplays counts requests served from a recorded idempotency
	// result rather than re-executing the mutation.
	IdempotencyReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_idempotency_replays_total",
		Help: "Requests served from a recorded idempotency result, by tenant and operation.",
	}, []string{"tenant_id", "operation"})
)

// ObserveHoldOperation records one Coordinator call's outcome and latency.
func ObserveHoldOperation(tenant, operation, outcome string, start time.Time) {
	HoldOperations.WithLabelValues(tenant, operation, outcome).Inc()
	HoldOperationDuration.WithLabelValues(tenant, operation).Observe(time.Since(start).Seconds())
}

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ledger implements the Lock Ledger: the authoritative KV store of
// seat -> (version, owner, expiry) behind four atomic server-side scripts.
package ledger

import (
	"context"
	"fmt"
)

// Outcome is the logical result of a ledger script invocation. Outcomes are
// never retried; only transport/transient errors are.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNOOP
	OutcomeConflict
)

// Key builds the canonical hash-tagged seat key. The braces around
// tenant:performance co-locate every seat of one performance on a single
// Redis Cluster shard so a multi-key script can run atomically.
func Key(tenant, performance, seat string) string {
	return fmt.Sprintf("hold:v1:{%s:%s}:%s", tenant, performance, seat)
}

// AcquireResult is the outcome of acquire_all_or_none.
type AcquireResult struct {
	Outcome   Outcome
	Conflicts []string // seat ids (not full keys) that conflicted, when Outcome == OutcomeConflict
}

// Ledger is the capability set the Hold Coordinator depends on. Production
// code uses the Redis-backed implementation; tests may substitute any other
// implementation satisfying the same atomic contract.
type Ledger interface {
	// AcquireAllOrNone locks every (seat, key) pair for owner at version, or
	// touches nothing and reports the conflicting seat ids.
	AcquireAllOrNone(ctx context.Context, tenant, performance string, seatKeys map[string]string, owner, version string, ttlMS int64) (AcquireResult, error)
	// ExtendIfOwner refreshes one seat key's TTL if owner/version match.
	ExtendIfOwner(ctx context.Context, tenant, performance, seat, owner, version string, ttlMS int64) (Outcome, error)
	// ReleaseIfOwner deletes one seat key if owner/version match.
	ReleaseIfOwner(ctx context.Context, tenant, performance, seat, owner, version string) (Outcome, error)
	// RollbackIfOwner is semantically identical to ReleaseIfOwner but is
	// invoked by internal compensation paths, never by a caller-initiated
	// release; kept distinct so the two call sites never silently diverge.
	RollbackIfOwner(ctx context.Context, tenant, performance, seat, owner, version string) (Outcome, error)
	// Probe reports whether a seat key is still present, for the Expiry
	// Reaper to confirm lazy expiry before declaring a hold EXPIRED.
	Probe(ctx context.Context, tenant, performance, seat string) (exists bool, err error)
}

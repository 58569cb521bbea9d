// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hold

import (
	"context"
	"sync"
	"time"

	"github.com/ticketing/seatlock/internal/ledger"
)

// fakeLedger is a real (if simplified) in-memory ledger: it enforces the
// same owner/version/TTL contract as the Redis-backed implementation, just
// without scripts or a network round-trip, so Coordinator tests exercise
// actual acquire/conflict/extend/release logic rather than canned outcomes.
type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]lockEntry
}

type lockEntry struct {
	owner, version string
	expiresAt      time.Time
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]lockEntry)}
}

func (f *fakeLedger) liveLocked(key string, now time.Time) (lockEntry, bool) {
	e, ok := f.entries[key]
	if !ok || !e.expiresAt.After(now) {
		return lockEntry{}, false
	}
	return e, true
}

func (f *fakeLedger) AcquireAllOrNone(ctx context.Context, tenant, performance string, seatKeys map[string]string, owner, version string, ttlMS int64) (ledger.AcquireResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()

	var conflicts []string
	for seat, key := range seatKeys {
		if e, ok := f.liveLocked(key, now); ok && e.owner != owner {
			conflicts = append(conflicts, seat)
		}
	}
	if len(conflicts) > 0 {
		return ledger.AcquireResult{Outcome: ledger.OutcomeConflict, Conflicts: conflicts}, nil
	}

	exp := now.Add(time.Duration(ttlMS) * time.Millisecond)
	for _, key := range seatKeys {
		f.entries[key] = lockEntry{owner: owner, version: version, expiresAt: exp}
	}
	return ledger.AcquireResult{Outcome: ledger.OutcomeOK}, nil
}

func (f *fakeLedger) ExtendIfOwner(ctx context.Context, tenant, performance, seat, owner, version string, ttlMS int64) (ledger.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	key := ledger.Key(tenant, performance, seat)
	e, ok := f.liveLocked(key, now)
	if !ok || e.owner != owner || e.version != version {
		return ledger.OutcomeNOOP, nil
	}
	f.entries[key] = lockEntry{owner: owner, version: version, expiresAt: now.Add(time.Duration(ttlMS) * time.Millisecond)}
	return ledger.OutcomeOK, nil
}

func (f *fakeLedger) ReleaseIfOwner(ctx context.Context, tenant, performance, seat, owner, version string) (ledger.Outcome, error) {
	return f.deleteIfOwner(tenant, performance, seat, owner, version)
}

func (f *fakeLedger) RollbackIfOwner(ctx context.Context, tenant, performance, seat, owner, version string) (ledger.Outcome, error) {
	return f.deleteIfOwner(tenant, performance, seat, owner, version)
}

func (f *fakeLedger) deleteIfOwner(tenant, performance, seat, owner, version string) (ledger.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ledger.Key(tenant, performance, seat)
	e, ok := f.liveLocked(key, time.Now())
	if !ok || e.owner != owner || e.version != version {
		return ledger.OutcomeNOOP, nil
	}
	delete(f.entries, key)
	return ledger.OutcomeOK, nil
}

func (f *fakeLedger) Probe(ctx context.Context, tenant, performance, seat string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.liveLocked(ledger.Key(tenant, performance, seat), time.Now())
	return ok, nil
}

var _ ledger.Ledger = (*fakeLedger)(nil)

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hold implements the Hold Coordinator: the cooperative state
// machine that validates, fences, and atomically commits seat reservations
// across the Lock Ledger and Shadow Store, publishing lifecycle events as
// it goes.
package hold

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ticketing/seatlock/internal/shadow"
)

// Hold is the Coordinator's view of a reservation, returned to callers.
// It mirrors shadow.Hold and carries the encoded fencing token alongside
// the raw version.
type Hold struct {
	HoldID       string            `json:"hold_id"`
	TenantID     string            `json:"tenant_id"`
	Performance  string            `json:"performance_id"`
	Seats        []string          `json:"seats"`
	Owner        string            `json:"owner"`
	Version      int64             `json:"version"`
	FencingToken string            `json:"fencing_token"`
	ExpiresAt    time.Time         `json:"expires_at"`
	State        shadow.HoldState  `json:"state"`
	CreatedAt    time.Time         `json:"created_at"`
}

// FencingToken encodes a (version, owner) pair into the opaque string form
// callers present on Extend/Release/Rollback/Convert. The owner is hashed
// rather than embedded verbatim so the token does not leak caller identity.
func FencingToken(version int64, owner string) string {
	return fmt.Sprintf("%d:%s", version, ownerHash(owner))
}

func ownerHash(owner string) string {
	sum := sha256.Sum256([]byte(owner))
	return hex.EncodeToString(sum[:])[:16]
}

func toHold(h *shadow.Hold) *Hold {
	seats := append([]string(nil), h.Seats...)
	return &Hold{
		HoldID:       h.HoldID,
		TenantID:     h.TenantID,
		Performance:  h.Performance,
		Seats:        seats,
		Owner:        h.Owner,
		Version:      h.Version,
		FencingToken: FencingToken(h.Version, h.Owner),
		ExpiresAt:    h.ExpiresAt,
		State:        h.State,
		CreatedAt:    h.CreatedAt,
	}
}

// dedupSeats reports the seat ids with duplicates removed, preserving first
// occurrence order, and whether any duplicate was found.
func dedupSeats(seats []string) (out []string, hadDuplicate bool) {
	seen := make(map[string]struct{}, len(seats))
	out = make([]string, 0, len(seats))
	for _, s := range seats {
		if _, ok := seen[s]; ok {
			hadDuplicate = true
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, hadDuplicate
}

// requestHash canonicalizes an operation's identifying fields into a stable
// hash, used to detect an idempotency key reused with a different body.
func requestHash(op string, fields ...string) string {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(op))
	for _, f := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// idemRecord is what gets persisted under an idempotency key: the hash of
// the request that produced it, and the verbatim result to replay.
type idemRecord struct {
	RequestHash string          `json:"request_hash"`
	Result      json.RawMessage `json:"result"`
}

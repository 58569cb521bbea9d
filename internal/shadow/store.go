// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package shadow implements the Shadow Store: the durable, tenant-scoped
// relational record of holds, blocks, and sold seats that parallels the
// ephemeral Lock Ledger.
package shadow

import (
	"context"
	"time"
)

// HoldState is one of the five states a Hold transitions through.
type HoldState string

const (
	HoldActive    HoldState = "ACTIVE"
	HoldExtended  HoldState = "EXTENDED"
	HoldReleased  HoldState = "RELEASED"
	HoldExpired   HoldState = "EXPIRED"
	HoldConverted HoldState = "CONVERTED"
)

// IsTerminal reports whether no further mutation is expected once a hold
// reaches this state.
func (s HoldState) IsTerminal() bool {
	switch s {
	case HoldReleased, HoldExpired, HoldConverted:
		return true
	default:
		return false
	}
}

// HoldEvent is one append-only audit entry in a hold's event log.
type HoldEvent struct {
	Sequence int64
	Type     string
	At       time.Time
	Note     string
}

// Hold is the durable shadow row for a reservation.
type Hold struct {
	HoldID      string
	TenantID    string
	Performance string
	Seats       []string
	Owner       string
	Version     int64
	ExpiresAt   time.Time
	State       HoldState
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Events      []HoldEvent
}

// Block is a permanent, admin-forced unavailability record.
type Block struct {
	TenantID    string
	Performance string
	Seat        string
	Reason      string
	CreatedAt   time.Time
}

// Sold is a terminal record created on conversion.
type Sold struct {
	TenantID    string
	Performance string
	Seat        string
	OrderID     string
	CreatedAt   time.Time
}

// ErrNotFound is returned when a hold is looked up and absent. Idempotency
// and lease lookups report absence with ok == false instead.
type ErrNotFound struct{ Resource, ID string }

func (e *ErrNotFound) Error() string { return e.Resource + " not found: " + e.ID }

// Lease is a single-writer guard lease, used by the Expiry Reaper so only
// one instance sweeps a given deployment at a time.
type Lease interface {
	Key() string
	Owner() string
	ExpiresAt() time.Time
}

// Store is the Shadow Store capability set the Hold Coordinator, Expiry
// Reaper, and Availability Projector depend on. Every mutating method binds
// tenant scoping internally; callers never need to add their own tenant
// predicate.
type Store interface {
	// CreateHold persists a new ACTIVE hold with its initial audit event.
	CreateHold(ctx context.Context, h *Hold) error
	// GetHold returns a hold by id, tenant-scoped.
	GetHold(ctx context.Context, tenant, holdID string) (*Hold, error)
	// AppendHoldEvent transitions a hold's state, bumps expires_at when
	// newExpiresAt is non-zero, and appends one audit event — all in one
	// transaction.
	AppendHoldEvent(ctx context.Context, tenant, holdID string, newState HoldState, newExpiresAt time.Time, event HoldEvent) error

	// CheckConflicts reports which of the given seats are blocked or sold.
	CheckConflicts(ctx context.Context, tenant, performance string, seats []string) (blocked, sold []string, err error)
	// Block marks a seat permanently unavailable.
	Block(ctx context.Context, tenant, performance, seat, reason string) error
	// Unblock removes a block record.
	Unblock(ctx context.Context, tenant, performance, seat string) error
	// InsertSold records seats as sold under a single order, tenant-scoped,
	// in its own transaction. The Convert state transition is written by a
	// separate AppendHoldEvent call; the two do not share a transaction.
	InsertSold(ctx context.Context, tenant, performance string, seats []string, orderID string) error

	// NextVersion allocates the next monotonic version for (tenant, performance).
	NextVersion(ctx context.Context, tenant, performance string) (int64, error)

	// PutIdempotency records the result key for idem_key with a TTL.
	PutIdempotency(ctx context.Context, tenant, idemKey, resultJSON string, ttl time.Duration) error
	// GetIdempotency returns the recorded result for idem_key, if present and unexpired.
	GetIdempotency(ctx context.Context, tenant, idemKey string) (resultJSON string, ok bool, err error)

	// ListSweepable returns ACTIVE/EXTENDED holds whose expires_at is before cutoff.
	ListSweepable(ctx context.Context, tenant string, cutoff time.Time) ([]*Hold, error)

	// Snapshot returns every non-terminal hold, block, and sold record for
	// (tenant, performance), for the Availability Projector.
	Snapshot(ctx context.Context, tenant, performance string) (holds []*Hold, blocks []*Block, sold []*Sold, err error)

	// TryAcquireLease/RenewLease/GetLease/ReleaseLease/DeleteAllLeases back
	// the single-writer guard used by the Expiry Reaper.
	TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error)
	RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error)
	GetLease(ctx context.Context, key string) (Lease, bool, error)
	ReleaseLease(ctx context.Context, key, owner string) error
	DeleteAllLeases(ctx context.Context) (int, error)

	Close() error
}

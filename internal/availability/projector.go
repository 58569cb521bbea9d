// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package availability implements the Availability Projector: a read-side
// merge of the Shadow Store's holds, blocks and sold records into an
// available/held/sold/blocked view per performance, plus a change stream
// sourced from the Event Bus Adapter. A seat is reported held while a
// non-terminal hold for it exists in the Shadow Store; the Lock Ledger is
// not consulted.
package availability

import (
	"context"
	"sort"

	"github.com/ticketing/seatlock/internal/bus"
	"github.com/ticketing/seatlock/internal/shadow"
)

// Status is a seat's observable state in a Snapshot.
type Status string

const (
	StatusAvailable Status = "available"
	StatusHeld      Status = "held"
	StatusSold      Status = "sold"
	StatusBlocked   Status = "blocked"
)

// SeatStatus is one row of a Snapshot.
type SeatStatus struct {
	Seat       string `json:"seat_id"`
	Status     Status `json:"status"`
	OwnerSelf  bool   `json:"owner_self,omitempty"`
}

// Projector merges the Shadow Store's holds/blocks/sold records into a
// per-performance availability view. It holds no state of its own:
// Snapshot is always computed fresh from the Store. A hold whose ledger
// keys have already expired keeps its seats held until the Expiry Reaper
// marks it EXPIRED on a later sweep.
type Projector struct {
	Store shadow.Store
	Bus   bus.Bus
}

// New returns a ready Projector.
func New(store shadow.Store, b bus.Bus) *Projector {
	return &Projector{Store: store, Bus: b}
}

// Snapshot returns every seat in the given performance with a known
// non-available status, ordered deterministically. callerOwner, when
// non-empty, marks held seats the caller itself holds via OwnerSelf so
// UIs can distinguish their own in-flight holds from other holders'.
//
// A seat that appears in none of holds/blocks/sold is implicitly
// available and is not included in the returned slice: the caller already
// knows the full seat map from the seatmap service (explicitly out of
// scope here), so Snapshot only reports departures from "available".
func (p *Projector) Snapshot(ctx context.Context, tenant, performance, callerOwner string) ([]SeatStatus, error) {
	holds, blocks, sold, err := p.Store.Snapshot(ctx, tenant, performance)
	if err != nil {
		return nil, err
	}

	byPriority := make(map[string]SeatStatus, len(blocks)+len(sold)+len(holds)*2)

	// Priority, lowest to highest so later writes in this function win:
	// held < blocked < sold. Block/sold are shadow-store-authoritative and
	// outrank a still-lingering ledger-held view if both somehow disagree.
	for _, h := range holds {
		if h.State.IsTerminal() {
			continue
		}
		for _, seat := range h.Seats {
			byPriority[seat] = SeatStatus{
				Seat:      seat,
				Status:    StatusHeld,
				OwnerSelf: callerOwner != "" && h.Owner == callerOwner,
			}
		}
	}
	for _, b := range blocks {
		byPriority[b.Seat] = SeatStatus{Seat: b.Seat, Status: StatusBlocked}
	}
	for _, s := range sold {
		byPriority[s.Seat] = SeatStatus{Seat: s.Seat, Status: StatusSold}
	}

	out := make([]SeatStatus, 0, len(byPriority))
	for _, st := range byPriority {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out, nil
}

// StreamSubscriber is a live availability change subscription. It wraps a
// bus.Subscriber so callers never depend on the bus package directly.
type StreamSubscriber struct {
	sub bus.Subscriber
}

// C returns the channel of ordered seat lifecycle events for one
// (tenant, performance) partition. Events are at-least-once and carry a
// monotonic Sequence; a subscriber that observes a gap must call Snapshot
// again before resuming, per the source specification's reconciliation
// contract. Late subscribers receive no backfill.
func (s *StreamSubscriber) C() <-chan bus.Message { return s.sub.C() }

// Close ends the subscription.
func (s *StreamSubscriber) Close() error { return s.sub.Close() }

// Stream subscribes to the live change stream for (tenant, performance).
func (p *Projector) Stream(ctx context.Context, tenant, performance string) (*StreamSubscriber, error) {
	sub, err := p.Bus.Subscribe(ctx, bus.Topic(tenant, performance))
	if err != nil {
		return nil, err
	}
	return &StreamSubscriber{sub: sub}, nil
}

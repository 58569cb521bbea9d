// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reaper implements the Expiry Reaper: a periodic sweep that
// reconciles lazily-expired Lock Ledger entries against the Shadow Store
// and emits seat.expired exactly once per seat.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ticketing/seatlock/internal/bus"
	"github.com/ticketing/seatlock/internal/ledger"
	"github.com/ticketing/seatlock/internal/log"
	"github.com/ticketing/seatlock/internal/metrics"
	"github.com/ticketing/seatlock/internal/shadow"
)

// Config tunes sweep cadence and the single-writer guard lease.
type Config struct {
	Interval time.Duration
	LeaseTTL time.Duration
	GuardKey string
	Owner    string
}

// DefaultConfig returns a 1s sweep cadence with a 5s guard lease, per
// the deployment's default reaper tuning.
func DefaultConfig(owner string) Config {
	return Config{
		Interval: time.Second,
		LeaseTTL: 5 * time.Second,
		GuardKey: "system:reaper:guard",
		Owner:    owner,
	}
}

// Reaper periodically sweeps ACTIVE/EXTENDED holds whose expires_at has
// passed, confirms the corresponding ledger keys are gone, and transitions
// the hold to EXPIRED with one seat.expired event per seat.
type Reaper struct {
	Store  shadow.Store
	Ledger ledger.Ledger
	Bus    bus.Bus
	Conf   Config
}

// New returns a ready Reaper.
func New(store shadow.Store, ldg ledger.Ledger, b bus.Bus, conf Config) *Reaper {
	return &Reaper{Store: store, Ledger: ldg, Bus: b, Conf: conf}
}

// Run acquires the singleton guard lease, maintains it for as long as ctx
// is live, and sweeps on Conf.Interval. Only one Reaper instance per
// deployment ever holds the lease at a time; a second instance's Run call
// returns an error immediately rather than sweeping redundantly.
func (r *Reaper) Run(ctx context.Context) error {
	if _, acquired, err := r.Store.TryAcquireLease(ctx, r.Conf.GuardKey, r.Conf.Owner, r.Conf.LeaseTTL); err != nil {
		return fmt.Errorf("reaper: acquire guard lease: %w", err)
	} else if !acquired {
		return fmt.Errorf("reaper: guard lease held by another instance; refusing to sweep")
	}

	guardFail := make(chan error, 1)
	go r.maintainGuardLease(ctx, guardFail)

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Store.ReleaseLease(releaseCtx, r.Conf.GuardKey, r.Conf.Owner)
	}()

	ticker := time.NewTicker(r.Conf.Interval)
	defer ticker.Stop()

	log.L().Info().Dur("interval", r.Conf.Interval).Msg("expiry reaper started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-guardFail:
			return fmt.Errorf("reaper: guard lease lost: %w", err)
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

func (r *Reaper) maintainGuardLease(ctx context.Context, fail chan<- error) {
	ticker := time.NewTicker(r.Conf.LeaseTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, ok, err := r.Store.RenewLease(ctx, r.Conf.GuardKey, r.Conf.Owner, r.Conf.LeaseTTL)
			if err != nil {
				fail <- fmt.Errorf("renew failed: %w", err)
				return
			}
			if !ok {
				fail <- errors.New("guard lease stolen or expired")
				return
			}
		}
	}
}

// SweepOnce performs exactly one sweep pass. It is deterministic given the
// store's contents and is the unit tested surface.
func (r *Reaper) SweepOnce(ctx context.Context) {
	holds, err := r.Store.ListSweepable(ctx, "", time.Now())
	if err != nil {
		metrics.ReaperSweeps.WithLabelValues("error").Inc()
		log.L().Warn().Err(err).Msg("reaper: sweep scan failed")
		return
	}
	metrics.ReaperSweeps.WithLabelValues("ok").Inc()

	expiredCount := 0
	for _, h := range holds {
		if r.expireHold(ctx, h) {
			expiredCount++
			metrics.ReaperExpiredSeats.WithLabelValues(h.TenantID).Add(float64(len(h.Seats)))
		}
	}
	if expiredCount > 0 {
		log.L().Info().Int("count", expiredCount).Msg("reaper: expired holds reconciled")
	}
}

// expireHold confirms every seat's ledger key is gone, then transitions the
// hold to EXPIRED and publishes one seat.expired event per seat. If any
// ledger key is still present (a concurrent extend raced the sweep), the
// hold is left alone for the next sweep pass.
func (r *Reaper) expireHold(ctx context.Context, h *shadow.Hold) bool {
	for _, seat := range h.Seats {
		exists, err := r.Ledger.Probe(ctx, h.TenantID, h.Performance, seat)
		if err != nil {
			log.L().Warn().Err(err).Str("hold_id", h.HoldID).Str("seat", seat).Msg("reaper: probe failed, deferring")
			return false
		}
		if exists {
			return false
		}
	}

	now := time.Now()
	if err := r.Store.AppendHoldEvent(ctx, h.TenantID, h.HoldID, shadow.HoldExpired, time.Time{}, shadow.HoldEvent{
		Type: "hold.expired",
		At:   now,
		Note: "reaper: all seat keys absent from ledger",
	}); err != nil {
		log.L().Warn().Err(err).Str("hold_id", h.HoldID).Msg("reaper: failed to mark hold expired")
		return false
	}

	for i, seat := range h.Seats {
		msg := bus.Message{
			Tenant:      h.TenantID,
			Performance: h.Performance,
			Seat:        seat,
			Kind:        "seat.expired",
			Sequence:    int64(len(h.Events)) + 1 + int64(i),
			HoldID:      h.HoldID,
			Owner:       h.Owner,
			At:          now,
		}
		if err := r.Bus.Publish(ctx, bus.Topic(h.TenantID, h.Performance), msg); err != nil {
			log.L().Warn().Err(err).Str("hold_id", h.HoldID).Str("seat", seat).Msg("reaper: failed to publish seat.expired")
		}
	}
	return true
}

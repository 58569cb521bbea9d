// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hold

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ticketing/seatlock/internal/bus"
	"github.com/ticketing/seatlock/internal/holderr"
	"github.com/ticketing/seatlock/internal/shadow"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *shadow.MemoryStore, *bus.MemoryBus) {
	t.Helper()
	store := shadow.NewMemoryStore()
	b := bus.NewMemoryBus()
	conf := DefaultConfig()
	conf.RateLimitBurst = 1000 // tests issue many calls quickly; rate limiting is covered separately
	c := New(newFakeLedger(), store, b, conf)
	return c, store, b
}

func mustKind(t *testing.T, err error, kind holderr.Kind) *holderr.Error {
	t.Helper()
	var he *holderr.Error
	require.ErrorAs(t, err, &he)
	require.Equal(t, kind, he.Kind)
	return he
}

// S1: concurrent-in-spirit acquire conflict leaves the untouched seat free.
func TestAcquireConflictLeavesOtherSeatUntouched(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	h1, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1", "A2", "A3"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), h1.Version)

	_, err = c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A3", "A4"},
		Owner: "O2", TTL: 120 * time.Second, IdemKey: "idem-2",
	})
	he := mustKind(t, err, holderr.KindConflict)
	require.ElementsMatch(t, []string{"A3"}, he.Seats)

	h3, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A4"},
		Owner: "O3", TTL: 120 * time.Second, IdemKey: "idem-3",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A4"}, h3.Seats)
}

func TestAcquireDuplicateSeatIdsRejectedWithoutTouchingLedger(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1", "A1", "A2"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	mustKind(t, err, holderr.KindValidation)

	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O2", TTL: 120 * time.Second, IdemKey: "idem-2",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A1"}, h.Seats)
}

func TestAcquireIdempotentReplayReturnsVerbatimResult(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	req := AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	}

	h1, err := c.Acquire(ctx, req)
	require.NoError(t, err)

	h2, err := c.Acquire(ctx, req)
	require.NoError(t, err)
	require.Equal(t, h1.HoldID, h2.HoldID)
	require.Equal(t, h1.Version, h2.Version)
	require.Equal(t, h1.FencingToken, h2.FencingToken)
	require.Equal(t, h1.Seats, h2.Seats)
	require.WithinDuration(t, h1.ExpiresAt, h2.ExpiresAt, time.Second)
}

func TestAcquireIdempotencyKeyReusedWithDifferentBodyMismatches(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	_, err = c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A2"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	mustKind(t, err, holderr.KindIdempotencyMismatch)
}

// S2: extend succeeds, then a further extend that would exceed the maximum
// hold lifetime is rejected without mutating the ledger.
func TestExtendSucceedsThenRejectsPastMaxLife(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.Conf.MaxHoldLife = 180 * time.Second
	ctx := context.Background()

	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	h2, err := c.Extend(ctx, ExtendRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version,
		Additional: 60 * time.Second,
	})
	require.NoError(t, err)
	require.WithinDuration(t, h.ExpiresAt.Add(60*time.Second), h2.ExpiresAt, time.Second)

	_, err = c.Extend(ctx, ExtendRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version,
		Additional: 60 * time.Second,
	})
	mustKind(t, err, holderr.KindStale)
}

func TestExtendWithStaleVersionIsRejected(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	_, err = c.Extend(ctx, ExtendRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version + 1,
		Additional: 30 * time.Second,
	})
	mustKind(t, err, holderr.KindStale)
}

// Property 4: Acquire -> Release returns the seat to available; a
// subsequent Acquire by any owner succeeds.
func TestReleaseRoundTripFreesSeatForAnyOwner(t *testing.T) {
	c, _, b := newTestCoordinator(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, bus.Topic("t1", "p1"))
	require.NoError(t, err)
	defer sub.Close()

	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.C():
		require.Equal(t, "seat.locked", msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for seat.locked")
	}

	released, err := c.Release(ctx, ReleaseRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version,
	})
	require.NoError(t, err)
	require.Equal(t, shadow.HoldReleased, released.State)

	select {
	case msg := <-sub.C():
		require.Equal(t, "seat.released", msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for seat.released")
	}

	h2, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O2", TTL: 120 * time.Second, IdemKey: "idem-2",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A1"}, h2.Seats)
}

func TestRollbackEmitsNoSeatReleasedEvent(t *testing.T) {
	c, _, b := newTestCoordinator(t)
	ctx := context.Background()

	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, bus.Topic("t1", "p1"))
	require.NoError(t, err)
	defer sub.Close()

	err = c.Rollback(ctx, RollbackRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version,
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected event published on rollback: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}

	h2, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O2", TTL: 120 * time.Second, IdemKey: "idem-2",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A1"}, h2.Seats)
}

// S4: convert, idempotent re-convert, and an order id mismatch.
func TestConvertThenIdempotentReplayThenOrderMismatch(t *testing.T) {
	c, _, b := newTestCoordinator(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, bus.Topic("t1", "p1"))
	require.NoError(t, err)
	defer sub.Close()

	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1", "A2"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-acquire",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C():
			require.Equal(t, "seat.locked", msg.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for seat.locked")
		}
	}

	converted, err := c.Convert(ctx, ConvertRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version,
		OrderID: "ORD1", IdemKey: "idem-convert",
	})
	require.NoError(t, err)
	require.Equal(t, shadow.HoldConverted, converted.State)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C():
			require.Equal(t, "seat.sold", msg.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for seat.sold")
		}
	}

	_, err = c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O2", TTL: 120 * time.Second, IdemKey: "idem-reacquire",
	})
	he := mustKind(t, err, holderr.KindConflict)
	require.ElementsMatch(t, []string{"A1"}, he.Seats)

	replay, err := c.Convert(ctx, ConvertRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version,
		OrderID: "ORD1", IdemKey: "idem-convert",
	})
	require.NoError(t, err)
	require.Equal(t, converted.HoldID, replay.HoldID)
	require.Equal(t, converted.State, replay.State)
	require.Equal(t, converted.FencingToken, replay.FencingToken)
	require.Equal(t, converted.Seats, replay.Seats)

	_, err = c.Convert(ctx, ConvertRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "O1", Version: h.Version,
		OrderID: "ORD2", IdemKey: "idem-convert",
	})
	mustKind(t, err, holderr.KindIdempotencyMismatch)
}

func TestConvertRejectsOwnershipMismatch(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	_, err = c.Convert(ctx, ConvertRequest{
		Tenant: "t1", HoldID: h.HoldID, Owner: "someone-else", Version: h.Version,
		OrderID: "ORD1", IdemKey: "idem-convert",
	})
	mustKind(t, err, holderr.KindStale)
}

// Property 1/6: all-or-none acquire leaves zero ledger writes on conflict.
func TestAcquireAllOrNoneLeavesNoPartialLedgerState(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	_, err = c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1", "B1", "B2"},
		Owner: "O2", TTL: 120 * time.Second, IdemKey: "idem-2",
	})
	mustKind(t, err, holderr.KindConflict)

	// B1/B2 must remain free since the whole batch failed together.
	h, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"B1", "B2"},
		Owner: "O3", TTL: 120 * time.Second, IdemKey: "idem-3",
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"B1", "B2"}, h.Seats)
}

func TestAcquireRejectsTooManySeats(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.Conf.MaxSeatsPerRequest = 2
	ctx := context.Background()

	_, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1", "A2", "A3"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	mustKind(t, err, holderr.KindValidation)
}

func TestAcquireRejectsTTLAboveMaximum(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: c.Conf.MaxTTL + time.Second, IdemKey: "idem-1",
	})
	mustKind(t, err, holderr.KindValidation)
}

func TestOwnerRateLimitExceeded(t *testing.T) {
	store := shadow.NewMemoryStore()
	b := bus.NewMemoryBus()
	conf := DefaultConfig()
	conf.RateLimitBurst = 1
	conf.RateLimitPeriod = time.Minute
	c := New(newFakeLedger(), store, b, conf)
	ctx := context.Background()

	_, err := c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A1"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-1",
	})
	require.NoError(t, err)

	_, err = c.Acquire(ctx, AcquireRequest{
		Tenant: "t1", Performance: "p1", Seats: []string{"A2"},
		Owner: "O1", TTL: 120 * time.Second, IdemKey: "idem-2",
	})
	mustKind(t, err, holderr.KindRateLimited)
}

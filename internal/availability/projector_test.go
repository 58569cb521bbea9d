// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ticketing/seatlock/internal/bus"
	"github.com/ticketing/seatlock/internal/shadow"
)

func TestSnapshotMergesHoldsBlocksAndSold(t *testing.T) {
	ctx := context.Background()
	store := shadow.NewMemoryStore()
	p := New(store, bus.NewMemoryBus())

	now := time.Now()
	require.NoError(t, store.CreateHold(ctx, &shadow.Hold{
		HoldID: "hold-1", TenantID: "t1", Performance: "p1",
		Seats: []string{"A1", "A2"}, Owner: "O1", Version: 1,
		ExpiresAt: now.Add(time.Minute), State: shadow.HoldActive,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Block(ctx, "t1", "p1", "B1", "maintenance"))
	require.NoError(t, store.InsertSold(ctx, "t1", "p1", []string{"C1"}, "ORD1"))

	snap, err := p.Snapshot(ctx, "t1", "p1", "O1")
	require.NoError(t, err)

	byID := make(map[string]SeatStatus, len(snap))
	for _, s := range snap {
		byID[s.Seat] = s
	}

	require.Equal(t, StatusHeld, byID["A1"].Status)
	require.True(t, byID["A1"].OwnerSelf)
	require.Equal(t, StatusHeld, byID["A2"].Status)
	require.Equal(t, StatusBlocked, byID["B1"].Status)
	require.Equal(t, StatusSold, byID["C1"].Status)
	require.Len(t, snap, 4)
}

func TestSnapshotOwnerSelfFalseForOtherOwner(t *testing.T) {
	ctx := context.Background()
	store := shadow.NewMemoryStore()
	p := New(store, bus.NewMemoryBus())

	now := time.Now()
	require.NoError(t, store.CreateHold(ctx, &shadow.Hold{
		HoldID: "hold-1", TenantID: "t1", Performance: "p1",
		Seats: []string{"A1"}, Owner: "O1", Version: 1,
		ExpiresAt: now.Add(time.Minute), State: shadow.HoldActive,
		CreatedAt: now, UpdatedAt: now,
	}))

	snap, err := p.Snapshot(ctx, "t1", "p1", "O2")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.False(t, snap[0].OwnerSelf)
}

func TestSnapshotExcludesTerminalHolds(t *testing.T) {
	ctx := context.Background()
	store := shadow.NewMemoryStore()
	p := New(store, bus.NewMemoryBus())

	now := time.Now()
	require.NoError(t, store.CreateHold(ctx, &shadow.Hold{
		HoldID: "hold-1", TenantID: "t1", Performance: "p1",
		Seats: []string{"A1"}, Owner: "O1", Version: 1,
		ExpiresAt: now.Add(time.Minute), State: shadow.HoldReleased,
		CreatedAt: now, UpdatedAt: now,
	}))

	snap, err := p.Snapshot(ctx, "t1", "p1", "")
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestStreamDeliversPublishedEvents(t *testing.T) {
	ctx := context.Background()
	store := shadow.NewMemoryStore()
	b := bus.NewMemoryBus()
	p := New(store, b)

	sub, err := p.Stream(ctx, "t1", "p1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, bus.Topic("t1", "p1"), bus.Message{
		Tenant: "t1", Performance: "p1", Seat: "A1", Kind: "seat.locked", Sequence: 1,
	}))

	select {
	case msg := <-sub.C():
		require.Equal(t, "seat.locked", msg.Kind)
		require.Equal(t, "A1", msg.Seat)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream event")
	}
}

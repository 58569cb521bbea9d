// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package shadow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSqliteStore(t *testing.T) *SqliteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "shadow_test.db")
	s, err := OpenSqliteStore(dbPath, DefaultSqliteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqliteStorePragmas(t *testing.T) {
	s := newTestSqliteStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	require.Equal(t, 1, fk)
}

func TestSqliteStoreCreateAndGetHold(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()
	now := time.Now()

	h := &Hold{
		HoldID:      "hold-1",
		TenantID:    "t1",
		Performance: "p1",
		Seats:       []string{"A1", "A2"},
		Owner:       "owner-1",
		Version:     1,
		ExpiresAt:   now.Add(2 * time.Minute),
		State:       HoldActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Events: []HoldEvent{
			{Sequence: 1, Type: "hold.created", At: now},
		},
	}
	require.NoError(t, s.CreateHold(ctx, h))

	got, err := s.GetHold(ctx, "t1", "hold-1")
	require.NoError(t, err)
	require.Equal(t, HoldActive, got.State)
	require.ElementsMatch(t, []string{"A1", "A2"}, got.Seats)
	require.Len(t, got.Events, 1)
	require.Equal(t, "hold.created", got.Events[0].Type)

	_, err = s.GetHold(ctx, "other-tenant", "hold-1")
	require.Error(t, err)
}

func TestSqliteStoreAppendHoldEventTransitionsAndAppends(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()
	now := time.Now()

	h := &Hold{
		HoldID: "hold-2", TenantID: "t1", Performance: "p1",
		Seats: []string{"B1"}, Owner: "owner-1", Version: 1,
		ExpiresAt: now.Add(time.Minute), State: HoldActive,
		CreatedAt: now, UpdatedAt: now,
		Events: []HoldEvent{{Sequence: 1, Type: "hold.created", At: now}},
	}
	require.NoError(t, s.CreateHold(ctx, h))

	newExpiry := now.Add(5 * time.Minute)
	require.NoError(t, s.AppendHoldEvent(ctx, "t1", "hold-2", HoldExtended, newExpiry, HoldEvent{
		Type: "hold.extended", At: now,
	}))

	got, err := s.GetHold(ctx, "t1", "hold-2")
	require.NoError(t, err)
	require.Equal(t, HoldExtended, got.State)
	require.WithinDuration(t, newExpiry, got.ExpiresAt, time.Second)
	require.Len(t, got.Events, 2)
	require.Equal(t, int64(2), got.Events[1].Sequence)
	require.Equal(t, "hold.extended", got.Events[1].Type)
}

func TestSqliteStoreCheckConflicts(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Block(ctx, "t1", "p1", "A1", "damaged seat"))
	require.NoError(t, s.InsertSold(ctx, "t1", "p1", []string{"A2"}, "order-1"))

	blocked, sold, err := s.CheckConflicts(ctx, "t1", "p1", []string{"A1", "A2", "A3"})
	require.NoError(t, err)
	require.Equal(t, []string{"A1"}, blocked)
	require.Equal(t, []string{"A2"}, sold)

	require.NoError(t, s.Unblock(ctx, "t1", "p1", "A1"))
	blocked, _, err = s.CheckConflicts(ctx, "t1", "p1", []string{"A1"})
	require.NoError(t, err)
	require.Empty(t, blocked)
}

func TestSqliteStoreNextVersionMonotonic(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()

	v1, err := s.NextVersion(ctx, "t1", "p1")
	require.NoError(t, err)
	v2, err := s.NextVersion(ctx, "t1", "p1")
	require.NoError(t, err)
	require.Equal(t, int64(1), v1)
	require.Equal(t, int64(2), v2)
}

func TestSqliteStoreIdempotencyRoundTrip(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutIdempotency(ctx, "t1", "idem-1", `{"hold_id":"h1"}`, time.Minute))
	got, ok, err := s.GetIdempotency(ctx, "t1", "idem-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"hold_id":"h1"}`, got)

	require.NoError(t, s.PutIdempotency(ctx, "t1", "idem-2", `{}`, -time.Second))
	_, ok, err = s.GetIdempotency(ctx, "t1", "idem-2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSqliteStoreListSweepable(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)

	require.NoError(t, s.CreateHold(ctx, &Hold{
		HoldID: "hold-3", TenantID: "t1", Performance: "p1",
		Seats: []string{"C1"}, Owner: "owner-1", Version: 1,
		ExpiresAt: past, State: HoldActive,
		CreatedAt: past, UpdatedAt: past,
	}))

	sweepable, err := s.ListSweepable(ctx, "t1", time.Now())
	require.NoError(t, err)
	require.Len(t, sweepable, 1)
	require.Equal(t, "hold-3", sweepable[0].HoldID)
}

func TestSqliteStoreSnapshot(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateHold(ctx, &Hold{
		HoldID: "hold-4", TenantID: "t1", Performance: "p1",
		Seats: []string{"D1"}, Owner: "owner-1", Version: 1,
		ExpiresAt: now.Add(time.Minute), State: HoldActive,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.Block(ctx, "t1", "p1", "D2", "blocked"))
	require.NoError(t, s.InsertSold(ctx, "t1", "p1", []string{"D3"}, "order-1"))

	holds, blocks, sold, err := s.Snapshot(ctx, "t1", "p1")
	require.NoError(t, err)
	require.Len(t, holds, 1)
	require.Len(t, blocks, 1)
	require.Len(t, sold, 1)
}

func TestSqliteStoreLeaseLifecycle(t *testing.T) {
	s := newTestSqliteStore(t)
	ctx := context.Background()

	lease, ok, err := s.TryAcquireLease(ctx, "reaper", "instance-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "instance-1", lease.Owner())

	_, ok, err = s.TryAcquireLease(ctx, "reaper", "instance-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.RenewLease(ctx, "reaper", "instance-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := s.GetLease(ctx, "reaper")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "instance-1", got.Owner())

	require.NoError(t, s.ReleaseLease(ctx, "reaper", "instance-1"))
	_, ok, err = s.GetLease(ctx, "reaper")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.TryAcquireLease(ctx, "reaper2", "instance-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	n, err := s.DeleteAllLeases(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

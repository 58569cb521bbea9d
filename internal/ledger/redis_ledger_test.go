// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisLedger) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedisLedger(context.Background(), client, DefaultConfig())
	require.NoError(t, err)
	return mr, l
}

func seatKeys(tenant, performance string, seats ...string) map[string]string {
	out := make(map[string]string, len(seats))
	for _, s := range seats {
		out[s] = Key(tenant, performance, s)
	}
	return out
}

func TestAcquireAllOrNoneSuccess(t *testing.T) {
	_, l := setupMiniRedis(t)
	ctx := context.Background()

	res, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1", "A2", "A3"), "owner-1", "1", 120000)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
}

func TestAcquireAllOrNoneConflict(t *testing.T) {
	_, l := setupMiniRedis(t)
	ctx := context.Background()

	_, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1", "A2", "A3"), "owner-1", "1", 120000)
	require.NoError(t, err)

	res, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A3", "A4"), "owner-2", "2", 120000)
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, res.Outcome)
	require.ElementsMatch(t, []string{"A3"}, res.Conflicts)

	// A4 must remain untouched by the failed acquire.
	res2, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A4"), "owner-3", "3", 120000)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res2.Outcome)
}

func TestAcquireSameOwnerReacquireSucceeds(t *testing.T) {
	_, l := setupMiniRedis(t)
	ctx := context.Background()

	_, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "1", 120000)
	require.NoError(t, err)

	res, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "2", 120000)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
}

func TestExtendIfOwner(t *testing.T) {
	_, l := setupMiniRedis(t)
	ctx := context.Background()

	_, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "1", 120000)
	require.NoError(t, err)

	out, err := l.ExtendIfOwner(ctx, "t1", "p1", "A1", "owner-1", "1", 180000)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, out)

	out, err = l.ExtendIfOwner(ctx, "t1", "p1", "A1", "owner-1", "999", 180000)
	require.NoError(t, err)
	require.Equal(t, OutcomeNOOP, out)
}

func TestReleaseIfOwner(t *testing.T) {
	_, l := setupMiniRedis(t)
	ctx := context.Background()

	_, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "1", 120000)
	require.NoError(t, err)

	out, err := l.ReleaseIfOwner(ctx, "t1", "p1", "A1", "owner-1", "1")
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, out)

	// Released seat is available again.
	res, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-2", "2", 120000)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
}

func TestReleaseStaleVersionIsNOOP(t *testing.T) {
	_, l := setupMiniRedis(t)
	ctx := context.Background()

	_, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "1", 120000)
	require.NoError(t, err)

	out, err := l.ReleaseIfOwner(ctx, "t1", "p1", "A1", "owner-1", "0")
	require.NoError(t, err)
	require.Equal(t, OutcomeNOOP, out)
}

func TestRollbackIfOwner(t *testing.T) {
	_, l := setupMiniRedis(t)
	ctx := context.Background()

	_, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "1", 120000)
	require.NoError(t, err)

	out, err := l.RollbackIfOwner(ctx, "t1", "p1", "A1", "owner-1", "1")
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, out)
}

func TestExpiryViaFastForward(t *testing.T) {
	mr, l := setupMiniRedis(t)
	ctx := context.Background()

	_, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "1", 100)
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)

	res, err := l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-2", "2", 120000)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
}

func TestProbe(t *testing.T) {
	mr, l := setupMiniRedis(t)
	ctx := context.Background()

	exists, err := l.Probe(ctx, "t1", "p1", "A1")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = l.AcquireAllOrNone(ctx, "t1", "p1", seatKeys("t1", "p1", "A1"), "owner-1", "1", 100)
	require.NoError(t, err)

	exists, err = l.Probe(ctx, "t1", "p1", "A1")
	require.NoError(t, err)
	require.True(t, exists)

	mr.FastForward(200 * time.Millisecond)

	exists, err = l.Probe(ctx, "t1", "p1", "A1")
	require.NoError(t, err)
	require.False(t, exists)
}

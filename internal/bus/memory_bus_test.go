// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, Topic("t1", "p1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, Topic("t1", "p1"), Message{Tenant: "t1", Performance: "p1", Seat: "A1", Kind: "seat.held", Sequence: 1}))

	select {
	case msg := <-sub.C():
		require.Equal(t, "A1", msg.Seat)
		require.Equal(t, "seat.held", msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBusDropsOldestOnOverflow(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	topic := Topic("t1", "p1")

	sub, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub.Close()

	ms := sub.(*memSub)
	ms.mu.Lock()
	ms.buf = make([]Message, 0, ringSize+10)
	ms.mu.Unlock()

	for i := 0; i < ringSize+10; i++ {
		require.NoError(t, b.Publish(ctx, topic, Message{Seat: "A1", Kind: "seat.held", Sequence: int64(i)}))
	}

	ms.mu.Lock()
	bufLen := len(ms.buf)
	dropped := ms.dropped.Load()
	ms.mu.Unlock()

	require.LessOrEqual(t, bufLen, ringSize)
	require.Greater(t, dropped, uint64(0))
}

func TestMemoryBusCloseStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	topic := Topic("t1", "p1")

	sub, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	_, ok := <-sub.C()
	require.False(t, ok)
}

func TestMemoryBusMultipleSubscribersIndependent(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	topic := Topic("t1", "p1")

	sub1, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := b.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, b.Publish(ctx, topic, Message{Seat: "A1", Kind: "seat.held"}))

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case msg := <-sub.C():
			require.Equal(t, "A1", msg.Seat)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

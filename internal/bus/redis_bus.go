// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ticketing/seatlock/internal/log"
)

// RedisBus is the multi-node broker backend, built on Redis Pub/Sub. No
// corpus example imports a NATS client, so Pub/Sub — reusing the same
// Redis cluster the Lock Ledger already depends on — is the broker of
// record for a multi-instance deployment.
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus wraps an existing Redis client. The Hold Coordinator and the
// Lock Ledger share one client/connection pool.
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, "seatlock:"+topic, payload).Err(); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	pubsub := b.client.Subscribe(ctx, "seatlock:"+topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("bus: subscribe: %w", err)
	}

	s := &redisSub{
		pubsub: pubsub,
		out:    make(chan Message, ringSize),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (b *RedisBus) Close() error { return nil }

type redisSub struct {
	pubsub *redis.PubSub
	out    chan Message
	done   chan struct{}
}

func (s *redisSub) pump() {
	defer close(s.out)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.L().Warn().Err(err).Str("channel", raw.Channel).Msg("bus: dropping malformed message")
				continue
			}
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSub) C() <-chan Message { return s.out }

func (s *redisSub) Close() error {
	close(s.done)
	return s.pubsub.Close()
}

var _ Bus = (*RedisBus)(nil)

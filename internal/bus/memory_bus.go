// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ticketing/seatlock/internal/log"
	"github.com/ticketing/seatlock/internal/metrics"
)

// ringSize bounds each subscriber's backlog. A slow consumer loses its
// oldest unread messages rather than stalling the publisher.
const ringSize = 256

// MemoryBus is an in-process fan-out used for the single-node deployment
// profile and in tests. Publish never blocks: a subscriber that falls
// behind silently drops its oldest buffered message.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memSub
}

// NewMemoryBus returns a ready in-process Bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.push(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	s := &memSub{
		bus:    b,
		topic:  topic,
		out:    make(chan Message, 1),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	go s.pump()
	return s, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, s := range subs {
			s.closeLocked()
		}
	}
	b.subs = make(map[string][]*memSub)
	return nil
}

func (b *MemoryBus) removeSub(s *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lst := b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(b.subs, s.topic)
	} else {
		b.subs[s.topic] = out
	}
}

// memSub is a bounded ring-buffer-backed subscription. push never blocks:
// under contention the oldest buffered message is evicted to make room.
type memSub struct {
	bus   *MemoryBus
	topic string

	mu      sync.Mutex
	buf     []Message
	dropped atomic.Uint64

	out    chan Message
	notify chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

func (s *memSub) push(msg Message) {
	s.mu.Lock()
	if len(s.buf) >= ringSize {
		s.buf = s.buf[1:]
		n := s.dropped.Add(1)
		metrics.BusPublishDropped.WithLabelValues(tenantOf(s.topic)).Inc()
		if n%100 == 0 {
			log.L().Warn().Str("topic", s.topic).Uint64("dropped", n).Msg("bus subscriber ring buffer overflow, dropping oldest")
		}
	}
	s.buf = append(s.buf, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memSub) pump() {
	for {
		select {
		case <-s.done:
			close(s.out)
			return
		case <-s.notify:
		}
		for {
			s.mu.Lock()
			if len(s.buf) == 0 {
				s.mu.Unlock()
				break
			}
			msg := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()

			select {
			case s.out <- msg:
			case <-s.done:
				close(s.out)
				return
			}
		}
	}
}

func (s *memSub) C() <-chan Message { return s.out }

func (s *memSub) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	s.bus.removeSub(s)
	return nil
}

func (s *memSub) closeLocked() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// tenantOf extracts the tenant portion of a "tenant:performance" topic for
// metrics labeling, never the full topic (which embeds the performance id).
func tenantOf(topic string) string {
	for i, c := range topic {
		if c == ':' {
			return topic[:i]
		}
	}
	return topic
}

var _ Bus = (*MemoryBus)(nil)

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hold

import "time"

// Config tunes the Coordinator's validation bounds, timeouts, and per-owner
// rate limiting. Field names track the environment knobs.
type Config struct {
	// DefaultTTL is used when a caller omits ttl_ms (HOLD_TTL_MS_DEFAULT).
	DefaultTTL time.Duration
	// MaxTTL bounds a single Acquire ttl_ms (HOLD_TTL_MS_MAX). Extend is
	// bounded by MaxHoldLife instead.
	MaxTTL time.Duration
	// MaxHoldLife bounds a hold's total wall-clock life across all extends.
	MaxHoldLife time.Duration
	// MaxSeatsPerRequest bounds |seats| on Acquire (HOLD_MAX_SEATS_PER_REQUEST).
	MaxSeatsPerRequest int
	// OwnerIDMaxLength bounds the owner identity string (HOLD_OWNER_ID_MAX_LENGTH).
	OwnerIDMaxLength int
	// IdempotencyTTL bounds how long a recorded result is replayed (IDEMPOTENCY_TTL_HOURS).
	IdempotencyTTL time.Duration
	// RateLimitBurst and RateLimitPeriod describe the per-owner token bucket
	// (RATE_LIMIT_BURST, default 10 per 60s).
	RateLimitBurst  int
	RateLimitPeriod time.Duration

	// OperationTimeout bounds Acquire/Extend/Release/Rollback end-to-end.
	OperationTimeout time.Duration
	// ConvertTimeout bounds Convert end-to-end; it touches more shadow-store
	// state than the other operations so gets a longer budget.
	ConvertTimeout time.Duration

	// EmitConcurrency bounds how many per-seat bus publishes run at once.
	EmitConcurrency int64
}

// DefaultConfig returns the environment knob defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:         120 * time.Second,
		MaxTTL:             300 * time.Second,
		MaxHoldLife:        180 * time.Second,
		MaxSeatsPerRequest: 25,
		OwnerIDMaxLength:   128,
		IdempotencyTTL:     24 * time.Hour,
		RateLimitBurst:     10,
		RateLimitPeriod:    60 * time.Second,
		OperationTimeout:   150 * time.Millisecond,
		ConvertTimeout:     500 * time.Millisecond,
		EmitConcurrency:    8,
	}
}

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and hot-reloads the Seat Lock Engine's runtime
// configuration: environment variables first, an optional YAML file overlay
// for local development second, built-in defaults last.
package config

import (
	"time"

	"github.com/ticketing/seatlock/internal/hold"
	"github.com/ticketing/seatlock/internal/ledger"
	"github.com/ticketing/seatlock/internal/reaper"
)

// LedgerBackend selects the Lock Ledger's storage substrate.
type LedgerBackend string

const (
	LedgerBackendRedis LedgerBackend = "redis"
)

// ShadowBackend selects the Shadow Store's storage substrate.
type ShadowBackend string

const (
	ShadowBackendSqlite   ShadowBackend = "sqlite"
	ShadowBackendPostgres ShadowBackend = "postgres"
)

// BusBackend selects the Event Bus Adapter's transport.
type BusBackend string

const (
	BusBackendMemory BusBackend = "memory"
	BusBackendRedis  BusBackend = "redis"
)

// Config is the Seat Lock Engine's complete runtime configuration. Field
// names track the environment knobs named in spec.md §6.
type Config struct {
	// HoldTTLDefault is used when a caller omits ttl_ms (HOLD_TTL_MS_DEFAULT).
	HoldTTLDefault time.Duration
	// HoldTTLMax bounds a single Acquire ttl_ms (HOLD_TTL_MS_MAX).
	HoldTTLMax time.Duration
	// HoldMaxSeatsPerRequest bounds |seats| on Acquire (HOLD_MAX_SEATS_PER_REQUEST).
	HoldMaxSeatsPerRequest int
	// HoldOwnerIDMaxLength bounds the owner identity string (HOLD_OWNER_ID_MAX_LENGTH).
	HoldOwnerIDMaxLength int
	// IdempotencyTTLHours bounds how long a recorded result is replayed (IDEMPOTENCY_TTL_HOURS).
	IdempotencyTTLHours int
	// LedgerCommandTimeoutMS bounds a single Lua script invocation (LEDGER_COMMAND_TIMEOUT_MS).
	LedgerCommandTimeoutMS int
	// RateLimitBurst and RateLimitPeriod describe the per-owner token bucket
	// (RATE_LIMIT_BURST, default 10 per 60s). Safe to change at runtime.
	RateLimitBurst  int
	RateLimitPeriod time.Duration

	// LedgerBackend, ShadowBackend, BusBackend select deployment-profile
	// substrates. Not safe to change at runtime: each implies a different
	// wire-format/durability contract for already-issued fencing tokens.
	LedgerBackend LedgerBackend
	ShadowBackend ShadowBackend
	BusBackend    BusBackend

	RedisAddr    string
	PostgresDSN  string
	SqliteDBPath string

	ServiceName string
	HTTPAddr    string
	// LogLevel is safe to change at runtime via reload.
	LogLevel string

	// SnapshotPath, if set, receives an atomically-written copy of the
	// effective config on every successful load, for cold-start fallback if
	// the environment/file source is briefly unavailable on a restart.
	SnapshotPath string
}

// Default returns the spec's documented defaults.
func Default() Config {
	return Config{
		HoldTTLDefault:         120 * time.Second,
		HoldTTLMax:             300 * time.Second,
		HoldMaxSeatsPerRequest: 25,
		HoldOwnerIDMaxLength:   128,
		IdempotencyTTLHours:    24,
		LedgerCommandTimeoutMS: 50,
		RateLimitBurst:         10,
		RateLimitPeriod:        60 * time.Second,

		LedgerBackend: LedgerBackendRedis,
		ShadowBackend: ShadowBackendSqlite,
		BusBackend:    BusBackendMemory,

		RedisAddr:    "127.0.0.1:6379",
		SqliteDBPath: "seatlock.db",

		ServiceName: "seatlockd",
		HTTPAddr:    ":8080",
		LogLevel:    "info",
	}
}

// ToHoldConfig translates the loaded Config into the Hold Coordinator's own
// Config type, keeping the two decoupled: the Coordinator never imports this
// package.
func (c Config) ToHoldConfig() hold.Config {
	d := hold.DefaultConfig()
	d.DefaultTTL = c.HoldTTLDefault
	d.MaxTTL = c.HoldTTLMax
	d.MaxSeatsPerRequest = c.HoldMaxSeatsPerRequest
	d.OwnerIDMaxLength = c.HoldOwnerIDMaxLength
	d.IdempotencyTTL = time.Duration(c.IdempotencyTTLHours) * time.Hour
	d.RateLimitBurst = c.RateLimitBurst
	d.RateLimitPeriod = c.RateLimitPeriod
	return d
}

// ToLedgerConfig translates the loaded Config into the Lock Ledger's own
// Config type.
func (c Config) ToLedgerConfig() ledger.Config {
	d := ledger.DefaultConfig()
	d.CommandTimeout = time.Duration(c.LedgerCommandTimeoutMS) * time.Millisecond
	return d
}

// ToReaperConfig translates the loaded Config into the Expiry Reaper's own
// Config type, binding the singleton-guard lease to this process's identity.
func (c Config) ToReaperConfig(owner string) reaper.Config {
	return reaper.DefaultConfig(owner)
}

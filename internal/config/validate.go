// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "fmt"

// Validate checks the invariants spec.md §6 documents for the environment
// knobs: TTL_DEFAULT <= TTL_MAX, all integer knobs positive.
func Validate(c Config) error {
	if c.HoldTTLDefault <= 0 {
		return fmt.Errorf("config: HOLD_TTL_MS_DEFAULT must be positive")
	}
	if c.HoldTTLMax <= 0 {
		return fmt.Errorf("config: HOLD_TTL_MS_MAX must be positive")
	}
	if c.HoldTTLDefault > c.HoldTTLMax {
		return fmt.Errorf("config: HOLD_TTL_MS_DEFAULT (%s) exceeds HOLD_TTL_MS_MAX (%s)", c.HoldTTLDefault, c.HoldTTLMax)
	}
	if c.HoldMaxSeatsPerRequest <= 0 {
		return fmt.Errorf("config: HOLD_MAX_SEATS_PER_REQUEST must be positive")
	}
	if c.HoldOwnerIDMaxLength <= 0 {
		return fmt.Errorf("config: HOLD_OWNER_ID_MAX_LENGTH must be positive")
	}
	if c.IdempotencyTTLHours <= 0 {
		return fmt.Errorf("config: IDEMPOTENCY_TTL_HOURS must be positive")
	}
	if c.LedgerCommandTimeoutMS <= 0 {
		return fmt.Errorf("config: LEDGER_COMMAND_TIMEOUT_MS must be positive")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimitPeriod <= 0 {
		return fmt.Errorf("config: rate limit period must be positive")
	}

	switch c.LedgerBackend {
	case LedgerBackendRedis:
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.LedgerBackend)
	}
	switch c.ShadowBackend {
	case ShadowBackendSqlite, ShadowBackendPostgres:
	default:
		return fmt.Errorf("config: unknown shadow backend %q", c.ShadowBackend)
	}
	switch c.BusBackend {
	case BusBackendMemory, BusBackendRedis:
	default:
		return fmt.Errorf("config: unknown bus backend %q", c.BusBackend)
	}
	if c.ShadowBackend == ShadowBackendPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("config: shadow backend postgres requires a DSN")
	}
	return nil
}

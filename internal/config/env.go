// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ticketing/seatlock/internal/log"
)

// envString reads key from the environment, logging which source won.
func envString(logger zerolog.Logger, key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logger.Debug().Str("key", key).Str("source", "environment").Msg("config: using environment variable")
		return v
	}
	return def
}

// envInt reads an integer-valued env var, falling back to def on absence or
// parse failure (logged at warn, since a malformed env var silently falling
// back to default is a misconfiguration worth surfacing).
func envInt(logger zerolog.Logger, key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("config: malformed integer env var, using default")
		return def
	}
	return n
}

// envMillis reads an env var expressed in milliseconds into a time.Duration.
func envMillis(logger zerolog.Logger, key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("config: malformed millisecond env var, using default")
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// applyEnv overlays environment variables onto c, per spec.md §6's knob
// table plus the deployment-profile selection knobs AMBIENT-2 adds.
func applyEnv(c Config) Config {
	l := log.WithComponent("config")

	c.HoldTTLDefault = envMillis(l, "HOLD_TTL_MS_DEFAULT", c.HoldTTLDefault)
	c.HoldTTLMax = envMillis(l, "HOLD_TTL_MS_MAX", c.HoldTTLMax)
	c.HoldMaxSeatsPerRequest = envInt(l, "HOLD_MAX_SEATS_PER_REQUEST", c.HoldMaxSeatsPerRequest)
	c.HoldOwnerIDMaxLength = envInt(l, "HOLD_OWNER_ID_MAX_LENGTH", c.HoldOwnerIDMaxLength)
	c.IdempotencyTTLHours = envInt(l, "IDEMPOTENCY_TTL_HOURS", c.IdempotencyTTLHours)
	c.LedgerCommandTimeoutMS = envInt(l, "LEDGER_COMMAND_TIMEOUT_MS", c.LedgerCommandTimeoutMS)
	c.RateLimitBurst = envInt(l, "RATE_LIMIT_BURST", c.RateLimitBurst)
	c.RateLimitPeriod = envMillis(l, "RATE_LIMIT_PERIOD_MS", c.RateLimitPeriod)

	c.LedgerBackend = LedgerBackend(envString(l, "SLE_LEDGER_BACKEND", string(c.LedgerBackend)))
	c.ShadowBackend = ShadowBackend(envString(l, "SLE_SHADOW_BACKEND", string(c.ShadowBackend)))
	c.BusBackend = BusBackend(envString(l, "SLE_BUS_BACKEND", string(c.BusBackend)))

	c.RedisAddr = envString(l, "SLE_REDIS_ADDR", c.RedisAddr)
	c.PostgresDSN = envString(l, "SLE_POSTGRES_DSN", c.PostgresDSN)
	c.SqliteDBPath = envString(l, "SLE_SQLITE_PATH", c.SqliteDBPath)

	c.ServiceName = envString(l, "SLE_SERVICE_NAME", c.ServiceName)
	c.HTTPAddr = envString(l, "SLE_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = envString(l, "SLE_LOG_LEVEL", c.LogLevel)
	c.SnapshotPath = envString(l, "SLE_CONFIG_SNAPSHOT_PATH", c.SnapshotPath)

	return c
}

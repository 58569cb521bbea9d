// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOverlay is the YAML shape accepted for local-development config
// overlays. Every field is optional; an absent field leaves the default (or
// environment-sourced value, if the file is applied before env) untouched.
type fileOverlay struct {
	HoldTTLMSDefault       *int64  `yaml:"hold_ttl_ms_default"`
	HoldTTLMSMax           *int64  `yaml:"hold_ttl_ms_max"`
	HoldMaxSeatsPerRequest *int    `yaml:"hold_max_seats_per_request"`
	HoldOwnerIDMaxLength   *int    `yaml:"hold_owner_id_max_length"`
	IdempotencyTTLHours    *int    `yaml:"idempotency_ttl_hours"`
	LedgerCommandTimeoutMS *int    `yaml:"ledger_command_timeout_ms"`
	RateLimitBurst         *int    `yaml:"rate_limit_burst"`
	RateLimitPeriodMS      *int64  `yaml:"rate_limit_period_ms"`
	LedgerBackend          *string `yaml:"ledger_backend"`
	ShadowBackend          *string `yaml:"shadow_backend"`
	BusBackend             *string `yaml:"bus_backend"`
	RedisAddr              *string `yaml:"redis_addr"`
	PostgresDSN            *string `yaml:"postgres_dsn"`
	SqliteDBPath           *string `yaml:"sqlite_db_path"`
	ServiceName            *string `yaml:"service_name"`
	HTTPAddr               *string `yaml:"http_addr"`
	LogLevel               *string `yaml:"log_level"`
}

// applyFile overlays the YAML file at path onto c. A missing path is not an
// error: the file overlay is optional, env-only deployments never set one.
func applyFile(c Config, path string) (Config, error) {
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var f fileOverlay
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return c, fmt.Errorf("config: parse file %s: %w", path, err)
	}

	if f.HoldTTLMSDefault != nil {
		c.HoldTTLDefault = time.Duration(*f.HoldTTLMSDefault) * time.Millisecond
	}
	if f.HoldTTLMSMax != nil {
		c.HoldTTLMax = time.Duration(*f.HoldTTLMSMax) * time.Millisecond
	}
	if f.HoldMaxSeatsPerRequest != nil {
		c.HoldMaxSeatsPerRequest = *f.HoldMaxSeatsPerRequest
	}
	if f.HoldOwnerIDMaxLength != nil {
		c.HoldOwnerIDMaxLength = *f.HoldOwnerIDMaxLength
	}
	if f.IdempotencyTTLHours != nil {
		c.IdempotencyTTLHours = *f.IdempotencyTTLHours
	}
	if f.LedgerCommandTimeoutMS != nil {
		c.LedgerCommandTimeoutMS = *f.LedgerCommandTimeoutMS
	}
	if f.RateLimitBurst != nil {
		c.RateLimitBurst = *f.RateLimitBurst
	}
	if f.RateLimitPeriodMS != nil {
		c.RateLimitPeriod = time.Duration(*f.RateLimitPeriodMS) * time.Millisecond
	}
	if f.LedgerBackend != nil {
		c.LedgerBackend = LedgerBackend(*f.LedgerBackend)
	}
	if f.ShadowBackend != nil {
		c.ShadowBackend = ShadowBackend(*f.ShadowBackend)
	}
	if f.BusBackend != nil {
		c.BusBackend = BusBackend(*f.BusBackend)
	}
	if f.RedisAddr != nil {
		c.RedisAddr = *f.RedisAddr
	}
	if f.PostgresDSN != nil {
		c.PostgresDSN = *f.PostgresDSN
	}
	if f.SqliteDBPath != nil {
		c.SqliteDBPath = *f.SqliteDBPath
	}
	if f.ServiceName != nil {
		c.ServiceName = *f.ServiceName
	}
	if f.HTTPAddr != nil {
		c.HTTPAddr = *f.HTTPAddr
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	return c, nil
}

// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ledger

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ticketing/seatlock/internal/metrics"
)

//go:embed scripts/*.lua
var scriptFS embed.FS

func mustLoadScript(name string) *redis.Script {
	src, err := scriptFS.ReadFile("scripts/" + name)
	if err != nil {
		panic(fmt.Sprintf("ledger: embedded script %s missing: %v", name, err))
	}
	return redis.NewScript(string(src))
}

var (
	scriptAcquire  = mustLoadScript("acquire_all_or_none.lua")
	scriptExtend   = mustLoadScript("extend_if_owner.lua")
	scriptRelease  = mustLoadScript("release_if_owner.lua")
	scriptRollback = mustLoadScript("rollback_if_owner.lua")
)

// Config tunes the Redis-backed ledger's latency and retry budgets.
type Config struct {
	// CommandTimeout bounds a single script invocation (LEDGER_COMMAND_TIMEOUT_MS, default 50ms).
	CommandTimeout time.Duration
	// OperationTimeout bounds an operation including retries (default 150ms).
	OperationTimeout time.Duration
	// MaxRetries bounds retry attempts on transient substrate errors (default 3).
	MaxRetries int
}

// DefaultConfig returns the spec's default latency/retry budgets.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:   50 * time.Millisecond,
		OperationTimeout: 150 * time.Millisecond,
		MaxRetries:       3,
	}
}

// RedisLedger implements Ledger against a Redis Cluster/standalone client
// using the four embedded Lua scripts. Scripts are preloaded at
// construction and transparently reloaded by redis.Script on NOSCRIPT.
type RedisLedger struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedisLedger preloads all four scripts on the given client and returns a
// ready Ledger. Preloading means the steady-state path always hits EvalSha;
// a cache miss (e.g. after a Redis restart) is still handled transparently
// by redis.Script's Eval fallback.
func NewRedisLedger(ctx context.Context, client redis.UniversalClient, cfg Config) (*RedisLedger, error) {
	l := &RedisLedger{client: client, cfg: cfg}
	for _, s := range []*redis.Script{scriptAcquire, scriptExtend, scriptRelease, scriptRollback} {
		if err := client.ScriptLoad(ctx, s.Script).Err(); err != nil {
			return nil, fmt.Errorf("ledger: preload script: %w", err)
		}
	}
	return l, nil
}

// isRetryable reports whether err is a transient substrate error (transport,
// cache miss already handled by redis.Script, overload) as opposed to a
// logical outcome encoded in the script's return value.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (l *RedisLedger) runWithRetry(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.cfg.OperationTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		cmdCtx, cmdCancel := context.WithTimeout(opCtx, l.cfg.CommandTimeout)
		res, err := fn(cmdCtx)
		cmdCancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if opCtx.Err() != nil {
			break
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-opCtx.Done():
			return nil, opCtx.Err()
		}
	}
	if opCtx.Err() != nil {
		return nil, fmt.Errorf("ledger: operation timeout: %w", opCtx.Err())
	}
	return nil, lastErr
}

// AcquireAllOrNone runs acquire_all_or_none.lua across every seat key.
// seatKeys maps seat id -> full ledger key, so conflict results can be
// translated back to seat ids for the caller.
func (l *RedisLedger) AcquireAllOrNone(ctx context.Context, tenant, performance string, seatKeys map[string]string, owner, version string, ttlMS int64) (AcquireResult, error) {
	keys := make([]string, 0, len(seatKeys))
	keyToSeat := make(map[string]string, len(seatKeys))
	for seat, key := range seatKeys {
		keys = append(keys, key)
		keyToSeat[key] = seat
	}

	res, err := l.runWithRetry(ctx, func(c context.Context) (any, error) {
		return scriptAcquire.Run(c, l.client, keys, owner, version, ttlMS, time.Now().UnixMilli()).Result()
	})
	if err != nil {
		metrics.LedgerCommands.WithLabelValues("acquire_all_or_none", "error").Inc()
		return AcquireResult{}, err
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		metrics.LedgerCommands.WithLabelValues("acquire_all_or_none", "error").Inc()
		return AcquireResult{}, fmt.Errorf("ledger: unexpected acquire result shape")
	}
	tag, _ := arr[0].(string)
	switch tag {
	case "OK":
		metrics.LedgerCommands.WithLabelValues("acquire_all_or_none", "ok").Inc()
		return AcquireResult{Outcome: OutcomeOK}, nil
	case "CONFLICT":
		conflicts := make([]string, 0, len(arr)-1)
		for _, raw := range arr[1:] {
			key, _ := raw.(string)
			if seat, ok := keyToSeat[key]; ok {
				conflicts = append(conflicts, seat)
			} else {
				conflicts = append(conflicts, key)
			}
		}
		metrics.LedgerCommands.WithLabelValues("acquire_all_or_none", "conflict").Inc()
		return AcquireResult{Outcome: OutcomeConflict, Conflicts: conflicts}, nil
	default:
		metrics.LedgerCommands.WithLabelValues("acquire_all_or_none", "error").Inc()
		return AcquireResult{}, fmt.Errorf("ledger: unrecognized acquire tag %q", tag)
	}
}

func (l *RedisLedger) runSingleKeyScript(ctx context.Context, command string, script *redis.Script, key string, argv ...interface{}) (Outcome, error) {
	res, err := l.runWithRetry(ctx, func(c context.Context) (any, error) {
		return script.Run(c, l.client, []string{key}, argv...).Result()
	})
	if err != nil {
		metrics.LedgerCommands.WithLabelValues(command, "error").Inc()
		return OutcomeNOOP, err
	}
	tag, _ := res.(string)
	switch tag {
	case "OK":
		metrics.LedgerCommands.WithLabelValues(command, "ok").Inc()
		return OutcomeOK, nil
	case "NOOP":
		metrics.LedgerCommands.WithLabelValues(command, "noop").Inc()
		return OutcomeNOOP, nil
	default:
		metrics.LedgerCommands.WithLabelValues(command, "error").Inc()
		return OutcomeNOOP, fmt.Errorf("ledger: unrecognized tag %q", tag)
	}
}

// ExtendIfOwner runs extend_if_owner.lua.
func (l *RedisLedger) ExtendIfOwner(ctx context.Context, tenant, performance, seat, owner, version string, ttlMS int64) (Outcome, error) {
	return l.runSingleKeyScript(ctx, "extend_if_owner", scriptExtend, Key(tenant, performance, seat), owner, version, ttlMS)
}

// ReleaseIfOwner runs release_if_owner.lua.
func (l *RedisLedger) ReleaseIfOwner(ctx context.Context, tenant, performance, seat, owner, version string) (Outcome, error) {
	return l.runSingleKeyScript(ctx, "release_if_owner", scriptRelease, Key(tenant, performance, seat), owner, version)
}

// RollbackIfOwner runs rollback_if_owner.lua.
func (l *RedisLedger) RollbackIfOwner(ctx context.Context, tenant, performance, seat, owner, version string) (Outcome, error) {
	return l.runSingleKeyScript(ctx, "rollback_if_owner", scriptRollback, Key(tenant, performance, seat), owner, version)
}

// Probe reports whether a seat key still exists. It is a plain GET, not a
// script: the Expiry Reaper only ever reads here, never mutates.
func (l *RedisLedger) Probe(ctx context.Context, tenant, performance, seat string) (bool, error) {
	res, err := l.runWithRetry(ctx, func(c context.Context) (any, error) {
		return l.client.Exists(c, Key(tenant, performance, seat)).Result()
	})
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n > 0, nil
}

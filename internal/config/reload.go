// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ticketing/seatlock/internal/log"
)

// ConfigHolder holds an atomically-swappable Config snapshot plus an
// optional fsnotify watcher that reloads the subset of knobs safe to change
// without a restart: RateLimitBurst and LogLevel. TTL/seat-limit knobs are
// baked into already-issued fencing tokens' validity assumptions and are
// never touched by a hot reload.
type ConfigHolder struct {
	epoch    atomic.Uint64
	snapshot atomic.Pointer[Config]
	loader   *Loader
	watcher  *fsnotify.Watcher
}

// NewConfigHolder returns a ConfigHolder primed with initial.
func NewConfigHolder(initial Config, loader *Loader) *ConfigHolder {
	h := &ConfigHolder{loader: loader}
	h.store(initial)
	return h
}

func (h *ConfigHolder) store(c Config) {
	h.epoch.Add(1)
	h.snapshot.Store(&c)
}

// Get returns the current Config (thread-safe read).
func (h *ConfigHolder) Get() Config {
	if c := h.snapshot.Load(); c != nil {
		return *c
	}
	return Default()
}

// Epoch returns the number of successful swaps, for diagnostics.
func (h *ConfigHolder) Epoch() uint64 { return h.epoch.Load() }

// Reload re-runs the Loader and, if the result validates, swaps in a Config
// whose only changed fields are the ones safe to change at runtime. Any
// other field-level difference from the current snapshot is logged and
// ignored rather than applied, so a hot-reload can never silently change a
// TTL/seat-limit bound out from under in-flight fencing tokens.
func (h *ConfigHolder) Reload(ctx context.Context) error {
	next, err := h.loader.Load()
	if err != nil {
		return fmt.Errorf("config: reload: %w", err)
	}

	cur := h.Get()
	applied := cur
	applied.RateLimitBurst = next.RateLimitBurst
	applied.LogLevel = next.LogLevel

	ignored := next
	ignored.RateLimitBurst = cur.RateLimitBurst
	ignored.LogLevel = cur.LogLevel
	if ignored != cur {
		log.L().Warn().Msg("config: reload ignored changes to fields that require a restart")
	}

	if applied.RateLimitBurst != cur.RateLimitBurst {
		log.L().Info().Int("old", cur.RateLimitBurst).Int("new", applied.RateLimitBurst).Msg("config: rate_limit_burst reloaded")
	}
	if applied.LogLevel != cur.LogLevel {
		if err := log.SetLevel(ctx, applied.LogLevel); err != nil {
			log.L().Warn().Err(err).Str("level", applied.LogLevel).Msg("config: reload could not apply new log level")
			applied.LogLevel = cur.LogLevel
		}
	}

	if err := Validate(applied); err != nil {
		return fmt.Errorf("config: reloaded config failed validation: %w", err)
	}
	h.store(applied)
	return nil
}

// Watch starts an fsnotify watcher on the Loader's FilePath's containing
// directory and triggers Reload on writes, debounced to absorb editors'
// multi-event save sequences (temp-write + rename). A call with an empty
// FilePath is a no-op: env-only deployments have nothing to watch.
func (h *ConfigHolder) Watch(ctx context.Context) error {
	if h.loader.FilePath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	h.watcher = watcher

	dir := filepath.Dir(h.loader.FilePath)
	base := filepath.Base(h.loader.FilePath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config: watch dir %s: %w", dir, err)
	}

	go h.watchLoop(ctx, base)
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, base string) {
	var debounce *time.Timer
	const debounceWindow = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				if err := h.Reload(ctx); err != nil {
					log.L().Error().Err(err).Msg("config: automatic reload failed")
				}
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			log.L().Error().Err(err).Msg("config: watcher error")
		}
	}
}

// Stop closes the watcher, if running.
func (h *ConfigHolder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

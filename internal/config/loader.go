// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/ticketing/seatlock/internal/log"
)

// Loader assembles a Config from, in increasing precedence: built-in
// defaults, an optional YAML file overlay (FilePath), then environment
// variables. Env always wins, so a deployment can override a checked-in
// FilePath without editing it.
type Loader struct {
	FilePath string
}

// NewLoader returns a Loader reading the optional YAML overlay at filePath
// (empty disables the file source entirely).
func NewLoader(filePath string) *Loader {
	return &Loader{FilePath: filePath}
}

// Load builds and validates a Config, then — if SnapshotPath is set —
// atomically persists it to disk so a subsequent cold start can fall back to
// the last-known-good configuration if the environment/file source is
// briefly unavailable.
func (l *Loader) Load() (Config, error) {
	c := Default()

	c, err := applyFile(c, l.FilePath)
	if err != nil {
		return Config{}, err
	}
	c = applyEnv(c)

	if err := Validate(c); err != nil {
		return Config{}, err
	}

	if c.SnapshotPath != "" {
		if err := writeSnapshot(c.SnapshotPath, c); err != nil {
			log.L().Warn().Err(err).Str("path", c.SnapshotPath).Msg("config: failed to persist snapshot")
		}
	}
	return c, nil
}

// LoadColdStartFallback loads SnapshotPath's last-persisted Config when the
// primary source fails validation or is unreadable. It is the caller's
// decision whether to fall back; Load never does so implicitly.
func LoadColdStartFallback(snapshotPath string) (Config, error) {
	raw, err := os.ReadFile(snapshotPath)
	if err != nil {
		return Config{}, fmt.Errorf("config: read snapshot %s: %w", snapshotPath, err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse snapshot %s: %w", snapshotPath, err)
	}
	return c, Validate(c)
}

// writeSnapshot atomically writes c as JSON to path using renameio's
// write-to-tempfile-then-rename idiom, so a crash mid-write never leaves a
// truncated snapshot behind.
func writeSnapshot(path string, c Config) error {
	body, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal snapshot: %w", err)
	}
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("config: open pending snapshot file: %w", err)
	}
	defer pf.Cleanup()

	if _, err := pf.Write(body); err != nil {
		return fmt.Errorf("config: write snapshot: %w", err)
	}
	return pf.CloseAtomicallyReplace()
}

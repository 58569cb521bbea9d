// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigureAndAuditInfo(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "seatlockd-test"})

	AuditInfo(context.Background(), "hold.converted", "hold converted to order", map[string]any{
		"hold_id": "h1",
	})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to parse audit log line: %v", err)
	}
	if entry["component"] != "audit" {
		t.Errorf("expected component=audit, got %v", entry["component"])
	}
	if entry["event"] != "hold.converted" {
		t.Errorf("expected event=hold.converted, got %v", entry["event"])
	}
}

func TestSetLevelRejectsInvalid(t *testing.T) {
	if err := SetLevel(context.Background(), "not-a-level"); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestSetLevelUpdatesGlobalLevel(t *testing.T) {
	Configure(Config{})
	if err := SetLevel(context.Background(), "debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Errorf("expected global level debug, got %v", got)
	}
}

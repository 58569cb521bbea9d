// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package logbuffer

import (
	"strings"
	"testing"
)

func TestWriterFraming(t *testing.T) {
	Clear()
	w := &Writer{}

	part1 := `{"time":"2026-01-01T00:00:00Z","level":"info","component":"audit","event":"test.split","message":"part1`
	part2 := `_part2"}` + "\n"

	w.Write([]byte(part1))
	if len(Recent()) != 0 {
		t.Errorf("expected 0 entries after partial write, got %d", len(Recent()))
	}

	w.Write([]byte(part2))
	got := Recent()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry after full write, got %d", len(got))
	}
	if got[0].Fields["event"] != "test.split" {
		t.Errorf("expected event test.split, got %v", got[0].Fields["event"])
	}

	line2 := `{"time":"2026-01-01T00:00:01Z","level":"info","component":"audit","event":"burst.1","message":"msg1"}` + "\n"
	line3 := `{"time":"2026-01-01T00:00:02Z","level":"info","event":"request.handled","message":"msg2"}` + "\n"
	w.Write([]byte(line2 + line3))

	got = Recent()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries total, got %d", len(got))
	}
}

func TestWriterBounds(t *testing.T) {
	Clear()
	w := &Writer{}

	giantChunk := strings.Repeat("A", maxPartialBytes+1)
	w.Write([]byte(giantChunk))
	if w.partial.Len() != 0 {
		t.Error("partial buffer should have been reset after overflow")
	}
	if GetMetrics().DroppedPartialOverflow == 0 {
		t.Error("expected DroppedPartialOverflow metric to be incremented")
	}

	Clear()
	giantLine := `{"level":"info","component":"audit","event":"too.big","message":"` + strings.Repeat("B", maxLineBytes) + `"}` + "\n"
	w.Write([]byte(giantLine))
	if len(Recent()) != 0 {
		t.Error("giant line should have been dropped")
	}
	if GetMetrics().DroppedTooLargeLines == 0 {
		t.Error("expected DroppedTooLargeLines metric to be incremented")
	}
}

func TestWriterRelevanceFilter(t *testing.T) {
	Clear()
	w := &Writer{}

	auditLine := `{"level":"info","component":"audit","event":"log.level_changed","message":"ok"}` + "\n"
	w.Write([]byte(auditLine))

	reqLine := `{"level":"info","event":"request.handled","message":"ok"}` + "\n"
	w.Write([]byte(reqLine))

	debugLine := `{"level":"debug","component":"sql","message":"select 1"}` + "\n"
	w.Write([]byte(debugLine))

	got := Recent()
	if len(got) != 2 {
		t.Errorf("expected 2 entries (audit + request), got %d", len(got))
	}
	if GetMetrics().DroppedIrrelevant == 0 {
		t.Error("expected DroppedIrrelevant metric to be incremented")
	}
}

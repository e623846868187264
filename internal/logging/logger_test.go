package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestConsoleLogger(buf *bytes.Buffer, level string) *slog.Logger {
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	return slog.New(newConsoleHandler(buf, lv))
}

func TestConsoleHandlerFormatsComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := NewComponentLogger(newTestConsoleLogger(&buf, "info"), "orchestrator")

	logger.Info("job completed", String(FieldJobID, "abc-123"))

	line := buf.String()
	if !strings.Contains(line, " INFO orchestrator: job completed") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "job_id=abc-123") {
		t.Fatalf("expected job_id attribute in %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be a prefix, not an attribute: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, "info")

	logger.Warn("upload rejected", String("reason", "audio file is empty"))

	if !strings.Contains(buf.String(), `reason="audio file is empty"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestConsoleHandlerRendersErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, "info")

	logger.Error("transcription failed", Error(errors.New("model exploded")))

	if !strings.Contains(buf.String(), `error="model exploded"`) {
		t.Fatalf("expected error attribute, got %q", buf.String())
	}
}

func TestJSONHandlerNormalizesKeys(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lv))

	logger.Info("started", Int("workers", 2))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("parse json record: %v", err)
	}
	if record["msg"] != "started" {
		t.Fatalf("expected msg key, got %v", record)
	}
	if record["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record["workers"] != float64(2) {
		t.Fatalf("expected workers attribute, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic and must report disabled at every level.
	logger.Info("ignored")
	if logger.Enabled(nil, slog.LevelError) {
		t.Fatal("nop logger should be disabled")
	}
}

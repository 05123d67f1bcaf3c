package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"voiceloom/internal/logging"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("merge completed", logging.Int("records", 12))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "merge completed" {
		t.Fatalf("unexpected msg field: %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("unexpected level field: %v", record["level"])
	}
	if record["records"] != float64(12) {
		t.Fatalf("unexpected records field: %v", record["records"])
	}
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("diarization output empty", logging.String("source", "call.wav"))

	line := buf.String()
	if !strings.Contains(line, "WRN") {
		t.Fatalf("expected level tag in %q", line)
	}
	if !strings.Contains(line, "diarization output empty") {
		t.Fatalf("expected message in %q", line)
	}
	if !strings.Contains(line, "source=call.wav") {
		t.Fatalf("expected attribute in %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("info record should be filtered at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestWithContextDecoratesRunAndStage(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "run-42")
	ctx = logging.WithStage(ctx, "transcribe")
	logging.WithContext(ctx, logger).Info("stage started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldRunID] != "run-42" {
		t.Fatalf("missing run id: %v", record)
	}
	if record[logging.FieldStage] != "transcribe" {
		t.Fatalf("missing stage: %v", record)
	}
	if got := logging.StageFromContext(ctx); got != "transcribe" {
		t.Fatalf("StageFromContext = %q", got)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("ignored", logging.Error(nil))
}

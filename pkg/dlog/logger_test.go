package dlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestTextHandler_PersistentAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.LevelInfo, &buf).With("run", "abc")

	logger.Info("published", "uploaded", 3)
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "published run=abc, uploaded=3") {
		t.Errorf("Expected persistent attrs in output, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("Debug message should be filtered at info level")
	}
	if !strings.HasPrefix(out, "ℹ️  ") {
		t.Errorf("Expected info prefix, got %q", out)
	}
}

func TestTextHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: NewLogger(slog.LevelInfo, &buf).WithGroup("store")}
	logger.Error("put failed", "key", "version/index")

	if !strings.Contains(buf.String(), "store.key=version/index") {
		t.Errorf("Expected grouped key, got %q", buf.String())
	}
	if !strings.HasPrefix(buf.String(), "❌ ") {
		t.Errorf("Expected error prefix, got %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf})
	logger.Warn("bucket over limit", "country", "DE")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["country"] != "DE" || rec["level"] != "WARN" {
		t.Errorf("Unexpected record %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	if err != nil || level != slog.LevelDebug {
		t.Errorf("Expected debug, got %v (%v)", level, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestContext(t *testing.T) {
	logger := Discard()
	ctx := WithContext(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("Expected logger from context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("Expected default logger when none is stored")
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(prev) })
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", buf.String(), err)
	}
	return result
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	for _, cfg := range []*Config{
		nil,
		{Level: "debug", Format: "json", Output: "stdout"},
		{Level: "info", Format: "text", Output: "stderr"},
	} {
		if err := Init(cfg); err != nil {
			t.Fatalf("Init(%+v) failed: %v", cfg, err)
		}
	}
}

func TestInit_FileOutput(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	logFile := filepath.Join(t.TempDir(), "logs", "handoff.log")
	if err := Init(&Config{Level: "info", Output: logFile}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Info("hand-off finished")

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "hand-off finished") {
		t.Errorf("log file does not contain expected message: %q", content)
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureJSON(t)
	WithComponent("matcher").Info("matched")

	if got := decode(t, buf)["component"]; got != "matcher" {
		t.Errorf("component = %v, want matcher", got)
	}
}

func TestWithRun(t *testing.T) {
	buf := captureJSON(t)
	WithRun("run-1", "1200").Info("started")

	result := decode(t, buf)
	if result["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", result["run_id"])
	}
	if result["item_id"] != "1200" {
		t.Errorf("item_id = %v, want 1200", result["item_id"])
	}
}

func TestWithContext(t *testing.T) {
	buf := captureJSON(t)
	ctx := ContextWithRun(context.Background(), "run-2", "1300")
	ctx = ContextWithComponent(ctx, "handoff")
	WithContext(ctx).Warn("degraded")

	result := decode(t, buf)
	if result["run_id"] != "run-2" || result["item_id"] != "1300" || result["component"] != "handoff" {
		t.Errorf("context attributes missing: %v", result)
	}
	if result["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", result["level"])
	}
}

func TestLevelHelpers(t *testing.T) {
	buf := captureJSON(t)

	tests := []struct {
		logFunc func(string, ...any)
		level   string
	}{
		{Info, "INFO"},
		{Warn, "WARN"},
		{Error, "ERROR"},
	}
	for _, tt := range tests {
		buf.Reset()
		tt.logFunc("message")
		if got := decode(t, buf)["level"]; got != tt.level {
			t.Errorf("level = %v, want %s", got, tt.level)
		}
	}
}

func TestDiscard(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	Discard()
	if Logger() == prev {
		t.Error("Discard did not replace the logger")
	}
	Info("dropped")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Format != "text" || cfg.Output != "stderr" {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}

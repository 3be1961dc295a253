package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewRollingFile(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *RotationConfig
		wantSize    int
		wantAge     int
		wantBackups int
		wantError   bool
	}{
		{name: "nil config uses defaults", wantSize: 50, wantAge: 14, wantBackups: 5},
		{name: "valid config", cfg: &RotationConfig{MaxSize: "10MB", MaxAge: "1w", MaxBackups: 2}, wantSize: 10, wantAge: 7, wantBackups: 2},
		{name: "sizes round up to a megabyte", cfg: &RotationConfig{MaxSize: "64B", MaxAge: "36h"}, wantSize: 1, wantAge: 2, wantBackups: 5},
		{name: "invalid max_size", cfg: &RotationConfig{MaxSize: "lots"}, wantError: true},
		{name: "invalid max_age", cfg: &RotationConfig{MaxAge: "forever"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := newRollingFile(filepath.Join(t.TempDir(), "handoff.log"), tt.cfg)
			if tt.wantError {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w.MaxSize != tt.wantSize || w.MaxAge != tt.wantAge || w.MaxBackups != tt.wantBackups {
				t.Errorf("rotation = %dMB/%dd/%d backups, want %dMB/%dd/%d",
					w.MaxSize, w.MaxAge, w.MaxBackups, tt.wantSize, tt.wantAge, tt.wantBackups)
			}
		})
	}
}

func TestRollingFile_WritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "handoff.log")

	w, err := newRollingFile(path, &RotationConfig{MaxBackups: 3})
	if err != nil {
		t.Fatalf("newRollingFile failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	line := []byte(strings.Repeat("x", 40) + "\n")
	if _, err := w.Write(line); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("current file size = %d after rotation, want 0", info.Size())
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Errorf("expected a rotated backup next to %s, got %d entries", path, len(entries))
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		hasError bool
	}{
		{"100", 100, false},
		{"100B", 100, false},
		{"100KB", 100 * 1024, false},
		{"50MB", 50 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"10mb", 10 * 1024 * 1024, false},
		{"lots", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSize(tt.input)
			if tt.hasError != (err != nil) {
				t.Errorf("parseSize(%q) error = %v, wantErr %v", tt.input, err, tt.hasError)
			}
			if got != tt.expected {
				t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		hasError bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"36h", 36 * time.Hour, false},
		{"forever", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.hasError != (err != nil) {
				t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.hasError)
			}
			if got != tt.expected {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

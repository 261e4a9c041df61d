// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	if got := LevelDebug.toSlogLevel(); got != slog.LevelDebug {
		t.Errorf("LevelDebug maps to %v", got)
	}
	if got := LevelError.toSlogLevel(); got != slog.LevelError {
		t.Errorf("LevelError maps to %v", got)
	}
	if got := Level(99).toSlogLevel(); got != slog.LevelInfo {
		t.Errorf("unknown level must map to Info, got %v", got)
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.file != nil {
		t.Error("no LogDir configured but a file was opened")
	}
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "cli", Quiet: true})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil when LogDir specified")
	}
	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "cli_") {
		t.Errorf("Expected one cli_*.log file, got %v", files)
	}
}

func TestNew_WithLogDir_DefaultsServiceName(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, _ := os.ReadDir(tmpDir)
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "lodestar_") {
			found = true
		}
	}
	if !found {
		t.Error("Expected log file with 'lodestar_' prefix")
	}
}

func TestNew_UnwritableLogDirFallsBackToStderr(t *testing.T) {
	logger := New(Config{LogDir: string([]byte{0}), Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("expected nil file for an unusable LogDir")
	}
	// Logging must still work without panicking.
	logger.Info("still alive")
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	if logger.config.Service != "lodestar" {
		t.Errorf("Default service = %q", logger.config.Service)
	}
}

// =============================================================================
// Output Tests
// =============================================================================

// readLogFile closes the logger and returns its file content.
func readLogFile(t *testing.T, logger *Logger, dir string) string {
	t.Helper()
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil || len(files) == 0 {
		t.Fatalf("no log file in %s: %v", dir, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	return string(data)
}

func TestLogger_FileEntriesAreJSON(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "cli", Quiet: true})

	logger.Info("asked question", "session_id", "s-1")

	content := readLogFile(t, logger, tmpDir)
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.Split(content, "\n")[0]), &entry); err != nil {
		t.Fatalf("file entry is not JSON: %v", err)
	}
	if entry["msg"] != "asked question" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "cli" {
		t.Errorf("service attribute = %v", entry["service"])
	}
	if entry["session_id"] != "s-1" {
		t.Errorf("session_id attribute = %v", entry["session_id"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{Level: LevelWarn, LogDir: tmpDir, Quiet: true})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	content := readLogFile(t, logger, tmpDir)
	if strings.Contains(content, "dropped") {
		t.Error("entries below the configured level leaked into the file")
	}
	if !strings.Contains(content, "kept") {
		t.Error("Warn entry missing from the file")
	}
}

func TestLogger_WithAddsAttributes(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	child := logger.With("request_id", "r-1")

	child.Info("processing")

	content := readLogFile(t, logger, tmpDir)
	if !strings.Contains(content, "r-1") {
		t.Error("child attribute missing from output")
	}
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath(~/logs) = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("absolute path changed: %q", got)
	}
}

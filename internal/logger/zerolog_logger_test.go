// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/noldarim/wfbuilder/internal/config"
	"github.com/rs/zerolog"
)

func TestNewManager(t *testing.T) {
	// A regular file where a directory is expected makes MkdirAll fail
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("failed to create blocker file: %v", err)
	}

	tests := []struct {
		name        string
		config      *config.LogConfig
		expectError bool
		errorMsg    string
	}{
		{
			name: "minimal_config",
			config: &config.LogConfig{
				Level:  "info",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "console", Enabled: true},
				},
				Context: config.LogContextConfig{IncludeTimestamp: true},
			},
		},
		{
			name: "file_output_config",
			config: &config.LogConfig{
				Level:  "debug",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "file", Enabled: true, Path: filepath.Join(t.TempDir(), "test.log")},
				},
				Context: config.LogContextConfig{IncludeTimestamp: true, IncludeCaller: true},
			},
		},
		{
			name: "console_format_file",
			config: &config.LogConfig{
				Level:  "warn",
				Format: "console",
				Output: []config.LogOutputConfig{
					{Type: "file", Enabled: true, Path: filepath.Join(t.TempDir(), "console.log")},
				},
			},
		},
		{
			name: "rotating_file_config",
			config: &config.LogConfig{
				Level:  "error",
				Format: "json",
				Output: []config.LogOutputConfig{
					{
						Type:    "file",
						Enabled: true,
						Path:    filepath.Join(t.TempDir(), "rotating.log"),
						Rotate: config.LogRotateConfig{
							MaxSizeMB:  1,
							MaxBackups: 3,
							MaxAgeDays: 7,
							Compress:   true,
						},
					},
				},
			},
		},
		{
			name: "sampling_config",
			config: &config.LogConfig{
				Level:  "info",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "console", Enabled: true},
				},
				Sampling: config.LogSamplingConfig{
					Enabled:    true,
					Initial:    100,
					Thereafter: 10,
					Tick:       time.Second,
				},
			},
		},
		{
			name: "invalid_output_type",
			config: &config.LogConfig{
				Level:  "info",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "syslog", Enabled: true},
				},
			},
			expectError: true,
			errorMsg:    "unsupported output type: syslog",
		},
		{
			name: "invalid_file_path",
			config: &config.LogConfig{
				Level:  "info",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "file", Enabled: true, Path: filepath.Join(blocker, "logs", "file.log")},
				},
			},
			expectError: true,
			errorMsg:    "failed to create log directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewManager(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer manager.Close()

			if manager.config != tt.config {
				t.Error("config was not properly set")
			}
			if manager.packageLoggers == nil {
				t.Error("packageLoggers map should be initialized")
			}
		})
	}
}

func TestManager_FallbackBehavior(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: false},
		},
	}

	tempDir := t.TempDir()
	originalDir, _ := os.Getwd()
	defer os.Chdir(originalDir)
	os.Chdir(tempDir)

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer manager.Close()

	fallbackPath := filepath.Join(tempDir, "logs", "wfbuilder-fallback.log")
	if _, err := os.Stat(fallbackPath); os.IsNotExist(err) {
		t.Error("fallback log file was not created")
	}
	if len(manager.closers) != 1 {
		t.Errorf("expected 1 fallback writer, got %d", len(manager.closers))
	}
}

func TestManager_GetLogger(t *testing.T) {
	originalLevel := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(originalLevel)

	cfg := &config.LogConfig{
		Level:  "trace",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
		Levels: map[string]string{
			"stream": "debug",
			"hub":    "warn",
		},
	}

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer manager.Close()

	tests := []struct {
		name          string
		pkg           string
		expectedLevel zerolog.Level
	}{
		{"unconfigured_package_uses_global_level", "newpackage", zerolog.TraceLevel},
		{"configured_debug_level", "stream", zerolog.DebugLevel},
		{"configured_warn_level", "hub", zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := manager.GetLogger(tt.pkg)
			if l.GetLevel() != tt.expectedLevel {
				t.Errorf("expected level %v, got %v", tt.expectedLevel, l.GetLevel())
			}

			var buf bytes.Buffer
			out := l.Output(&buf)
			out.WithLevel(tt.expectedLevel).Msg("test message")

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log JSON: %v", err)
			}
			if entry["pkg"] != tt.pkg {
				t.Errorf("expected pkg=%q, got %v", tt.pkg, entry["pkg"])
			}
		})
	}
}

func TestManager_SetPackageLevel(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
	}

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer manager.Close()

	manager.SetPackageLevel("session", "debug")
	if level := manager.config.Levels["session"]; level != "debug" {
		t.Errorf("expected level 'debug', got %q", level)
	}

	manager.GetLogger("session")
	manager.SetPackageLevel("session", "error")

	var buf bytes.Buffer
	l := manager.GetLogger("session").Output(&buf)

	l.Debug().Msg("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should not appear when level is error")
	}

	buf.Reset()
	l.Error().Msg("error message")
	if buf.Len() == 0 {
		t.Error("error message should appear when level is error")
	}
}

func TestManager_ThreadSafety(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "file", Enabled: true, Path: filepath.Join(t.TempDir(), "concurrent.log")},
		},
	}

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer manager.Close()

	const numGoroutines = 100
	const numPackages = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			l := manager.GetLogger(fmt.Sprintf("pkg%d", i%numPackages))
			l.Info().Int("goroutine", i).Msg("test")
		}(i)
		go func(i int) {
			defer wg.Done()
			level := []string{"debug", "info", "warn", "error"}[i%4]
			manager.SetPackageLevel(fmt.Sprintf("pkg%d", i%numPackages), level)
		}(i)
	}
	wg.Wait()

	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if len(manager.packageLoggers) != numPackages {
		t.Errorf("expected %d package loggers, got %d", numPackages, len(manager.packageLoggers))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"TRACE", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"FATAL", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := parseLevel(tt.input); result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLumberjackRotation(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "rotating.log")

	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{
				Type:    "file",
				Enabled: true,
				Path:    logPath,
				Rotate: config.LogRotateConfig{
					MaxSizeMB:  1,
					MaxBackups: 3,
					MaxAgeDays: 1,
				},
			},
		},
	}

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	defer manager.Close()

	l := manager.GetLogger("stream")
	for i := 0; i < 500; i++ {
		l.Info().Int("iteration", i).Msg("frame received")
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), `"pkg":"stream"`) {
		t.Error("log file does not contain package-tagged entries")
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	// Uninitialized: discard logger, must not panic
	discard := GetLogger("test")
	discard.Info().Msg("this should be discarded")

	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "file", Enabled: true, Path: filepath.Join(t.TempDir(), "global.log")},
		},
	}

	if err := Initialize(cfg); err != nil {
		t.Fatalf("failed to initialize global logger: %v", err)
	}
	// Re-initializing replaces the manager
	if err := Initialize(cfg); err != nil {
		t.Fatalf("second initialization should not fail: %v", err)
	}

	var buf bytes.Buffer
	l := GetLogger("global-test").Output(&buf)
	l.Info().Msg("global test message")
	if buf.Len() == 0 {
		t.Error("expected initialized global logger to produce output")
	}

	if err := CloseGlobal(); err != nil {
		t.Errorf("CloseGlobal failed: %v", err)
	}
	if err := CloseGlobal(); err != nil {
		t.Errorf("CloseGlobal should not fail when not initialized: %v", err)
	}
}

func TestManager_WriteAfterClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "closed.log")
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "file", Enabled: true, Path: logPath},
		},
	}

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	l := manager.GetLogger("devserver")
	l.Info().Msg("before close")

	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var writeErrs []error
	prev := zerolog.ErrorHandler
	zerolog.ErrorHandler = func(err error) { writeErrs = append(writeErrs, err) }
	defer func() { zerolog.ErrorHandler = prev }()

	l.Info().Msg("after close")
	if len(writeErrs) != 0 {
		t.Errorf("logging after Close reported write errors: %v", writeErrs)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "before close") {
		t.Error("expected entry written before Close")
	}
	if strings.Contains(string(content), "after close") {
		t.Error("entry written after Close should be dropped")
	}
}

func TestFileWriter_CloseIsIdempotent(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "w.log"))
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	w := &fileWriter{w: file}

	if err := w.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
	n, err := w.Write([]byte("late"))
	if err != nil || n != 4 {
		t.Errorf("Write after Close = (%d, %v), want (4, nil)", n, err)
	}
}

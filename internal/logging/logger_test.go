package logging_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hearth/internal/config"
	"hearth/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")

	logger, err := logging.NewFromConfig(&cfg, "daemon-test.log")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon ready", logging.String(logging.FieldAddress, "unix:/tmp/d.sock"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "daemon-test.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon ready") || !strings.Contains(string(content), "address=unix:/tmp/d.sock") {
		t.Fatalf("unexpected log content: %q", content)
	}
}

func TestConsoleLoggerRendersComponentAndQuotes(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "connector").Info("stale daemon removed",
		logging.String("reason", "connection refused"),
		logging.Error(errors.New("dial failed")))
	logger.Debug("hidden at info level")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "INFO connector: stale daemon removed") {
		t.Fatalf("expected component prefix, got %q", text)
	}
	if !strings.Contains(text, `reason="connection refused"`) {
		t.Fatalf("expected quoted value, got %q", text)
	}
	if strings.Contains(text, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", text)
	}
	if strings.Contains(text, "hidden at info level") {
		t.Fatalf("debug record leaked at info level: %q", text)
	}
}

func TestJSONLoggerUsesLowercaseLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "registry unreadable", "registry_unavailable")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if record["level"] != "warn" {
		t.Fatalf("expected level warn, got %v", record["level"])
	}
	if record[logging.FieldEventType] != "registry_unavailable" {
		t.Fatalf("expected event_type, got %v", record[logging.FieldEventType])
	}
	if _, ok := record[logging.FieldErrorHint]; !ok {
		t.Fatal("expected default error_hint")
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitWithConfig_JSON(t *testing.T) {
	if err := InitWithConfig("debug", "json", "stdout", ""); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var buf bytes.Buffer
	SetOutput(&buf)

	WithField("event_id", "abc").Info("promoted")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "promoted" {
		t.Errorf("Expected msg 'promoted', got %v", entry["msg"])
	}
	if entry["event_id"] != "abc" {
		t.Errorf("Expected event_id field, got %v", entry["event_id"])
	}
	if GetLogger().GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", GetLogger().GetLevel())
	}
}

func TestInitWithConfig_Text(t *testing.T) {
	if err := InitWithConfig("bogus", "text", "stderr", ""); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var buf bytes.Buffer
	SetOutput(&buf)
	Info("hello %s", "world")

	if !strings.Contains(buf.String(), "hello world") {
		t.Errorf("Expected text output to contain message, got %q", buf.String())
	}
	if GetLogger().GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected fallback to info level, got %s", GetLogger().GetLevel())
	}
}

func TestInitWithConfig_File(t *testing.T) {
	if err := InitWithConfig("info", "json", "file", ""); err == nil {
		t.Fatal("Expected error for file output without path")
	}

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	if err := InitWithConfig("info", "json", "file", path); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	Info("to file")
}

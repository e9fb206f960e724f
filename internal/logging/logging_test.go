package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paramlink/paramlink/internal/config"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paramlink.log")
	logger, closeLog, err := New(config.LogConfig{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("connected", "addr", "127.0.0.1:5000")
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), data)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["msg"] != "connected" || record["addr"] != "127.0.0.1:5000" {
		t.Errorf("record = %v", record)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, _, err := New(config.LogConfig{Level: "loud", Format: "text"}); err == nil {
		t.Fatal("New accepted level \"loud\"")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing to see")
}

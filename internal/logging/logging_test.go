package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q)=%v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetupJSONWriter(t *testing.T) {
	t.Cleanup(Close)
	var buf bytes.Buffer
	if err := Setup(Options{Level: "debug", Writer: &buf}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	L().Debug("stack push", "task_id", "t1")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "stack push" || rec["task_id"] != "t1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestSetupTextFile(t *testing.T) {
	t.Cleanup(Close)
	path := filepath.Join(t.TempDir(), "logs", "rookit.log")
	if err := Setup(Options{Level: "warn", Format: "text", File: path}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	L().Info("dropped")
	With("component", "proxy").Warn("kept")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "component=proxy") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestOr(t *testing.T) {
	own := Discard()
	if Or(own) != own {
		t.Fatal("Or should keep a non-nil logger")
	}
	if Or(nil) == nil {
		t.Fatal("Or(nil) should fall back to the global logger")
	}
}

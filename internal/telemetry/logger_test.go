package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLoggerWritesOneObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := NewJSONLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("run.start", map[string]any{"run_id": "r1", "checks": 3})
	l.Error("exec.failed", map[string]any{"error": "boom"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var entries []map[string]any
	s := bufio.NewScanner(f)
	for s.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(s.Bytes(), &entry); err != nil {
			t.Fatalf("invalid json line %q: %v", s.Text(), err)
		}
		entries = append(entries, entry)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["msg"] != "run.start" || entries[0]["level"] != "info" {
		t.Fatalf("unexpected first entry: %#v", entries[0])
	}
	if entries[0]["run_id"] != "r1" {
		t.Fatalf("expected run_id field, got %#v", entries[0])
	}
	if _, ok := entries[0]["ts"]; !ok {
		t.Fatalf("expected ts field")
	}
	if entries[1]["level"] != "error" || entries[1]["error"] != "boom" {
		t.Fatalf("unexpected second entry: %#v", entries[1])
	}
}

func TestJSONLoggerWithoutPathIsNoop(t *testing.T) {
	l, err := NewJSONLogger("")
	if err != nil {
		t.Fatal(err)
	}
	l.Info("ignored", nil)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	var nilLogger *JSONLogger
	nilLogger.Info("ignored", nil)
}

func TestConsoleVerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	quiet := NewConsole(&buf, false)
	quiet.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be suppressed, got %q", buf.String())
	}
	loud := NewConsole(&buf, true)
	loud.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/boardstore/pkg/wal"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &out); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	return out
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "debug", Output: &buf})

	l.WhiteboardLogger("wb-1").Info("hello").Send()
	line := lastLine(t, &buf)
	if line["service"] != "boardstore" || line["whiteboard"] != "wb-1" || line["component"] != "whiteboard" {
		t.Errorf("Unexpected fields %v", line)
	}

	l.LogHTTPRequest("GET", "/whiteboard/get/{id}", 404, time.Millisecond)
	line = lastLine(t, &buf)
	if line["level"] != "warn" || line["status"] != float64(404) {
		t.Errorf("Expected warn for 404, got %v", line)
	}

	l.LogStoreOperation("put_current", "wb-1", time.Millisecond, errors.New("boom"))
	line = lastLine(t, &buf)
	if line["level"] != "error" || line["error"] != "boom" {
		t.Errorf("Expected error line, got %v", line)
	}

	l.LogRecovery("/tmp/x.wal", wal.RecoveryStats{UncommittedTxns: 1}, 3)
	line = lastLine(t, &buf)
	if line["level"] != "warn" || line["whiteboards"] != float64(3) {
		t.Errorf("Expected warn recovery line, got %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"bogus": zerolog.InfoLevel,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", name, got, want)
		}
	}
}

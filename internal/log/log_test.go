package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", true)
	l.Debug("hidden")
	l.Info("published", "lane1", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "published" {
		t.Errorf("msg: got %v, want published", rec["msg"])
	}
	if rec["lane1"] != float64(3) {
		t.Errorf("lane1: got %v, want 3", rec["lane1"])
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", false).Debug("frame", "seq", 7)
	if !strings.Contains(buf.String(), "seq=7") {
		t.Errorf("text output missing attribute: %q", buf.String())
	}
}

func TestPackageHelpers(t *testing.T) {
	var buf bytes.Buffer
	once.Do(func() {}) // keep Init from replacing the test logger
	prev := logger
	logger = New(&buf, "info", false)
	t.Cleanup(func() {
		if prev != nil {
			logger = prev
		}
	})

	Debug("hidden")
	Info("published", "lane1", 2)
	Warn("stream lost")
	Error("runtime error", "err", "eof")
	With("batch", 4).Info("saved")
	Component("hub").Info("client joined")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	for _, want := range []string{
		"level=INFO msg=published lane1=2",
		"level=WARN msg=\"stream lost\"",
		"level=ERROR msg=\"runtime error\" err=eof",
		"msg=saved batch=4",
		"msg=\"client joined\" component=hub",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

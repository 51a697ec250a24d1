package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"routeconv/internal/config"
)

// TestColorLineWriter_HighlightsLevelAndTokens verifies level and token coloring.
// Params: testing.T for assertions.
// Returns: none.
func TestColorLineWriter_HighlightsLevelAndTokens(t *testing.T) {
	var dst bytes.Buffer
	writer := &colorLineWriter{dst: &dst}

	line := `level=INFO msg="sample committed" device=10.20.30.40 samples=3`
	if _, err := writer.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	rendered := dst.String()
	if !strings.HasPrefix(rendered, ansiBlue) {
		t.Fatalf("expected INFO line base color")
	}
	if !strings.Contains(rendered, ansiGreen+`"sample committed"`+ansiReset+ansiBlue) {
		t.Fatalf("expected quoted string token color")
	}
	if !strings.Contains(rendered, ansiCyan+`10.20.30.40`+ansiReset+ansiBlue) {
		t.Fatalf("expected IP token color")
	}
	if !strings.Contains(rendered, ansiYellow+`3`+ansiReset+ansiBlue) {
		t.Fatalf("expected number token color")
	}
	if !strings.HasSuffix(rendered, ansiReset) {
		t.Fatalf("expected trailing reset sequence")
	}
}

// TestColorLineWriter_NoLevelColor verifies passthrough for unknown levels.
// Params: testing.T for assertions.
// Returns: none.
func TestColorLineWriter_NoLevelColor(t *testing.T) {
	var dst bytes.Buffer
	writer := &colorLineWriter{dst: &dst}

	line := `msg="plain" routes=42`
	if _, err := writer.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := dst.String(); got != line {
		t.Fatalf("expected passthrough line, got %q", got)
	}
}

// TestNew_FileSinkWritesJSON verifies file sink output and close function.
// Params: testing.T for assertions.
// Returns: none.
func TestNew_FileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "routeconv.log")

	logger, closeFn, err := New(config.LogConfig{
		File: config.LogSinkConfig{Enabled: true, Level: "debug", Format: "json", Path: path},
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("poller started", "device", "srl1")
	closeFn()
	closeFn()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"poller started"`) || !strings.Contains(string(raw), `"device":"srl1"`) {
		t.Fatalf("unexpected log file content: %s", raw)
	}
}

// TestParseLevel_RejectsUnknown verifies level parsing.
// Params: testing.T for assertions.
// Returns: none.
func TestParseLevel_RejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("warn"); err != nil {
		t.Fatalf("parse warn: %v", err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		l, err := NewLogger(LogLevelInfo, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.level != LogLevelInfo {
			t.Errorf("level = %d, want %d", l.level, LogLevelInfo)
		}
		if l.file != nil {
			t.Error("file should be nil when no path given")
		}
	})

	t.Run("with file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		l, err := NewLogger(LogLevelDebug, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.file == nil {
			t.Error("file should not be nil")
		}
		if l.fileLog == nil {
			t.Error("fileLog should not be nil")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := NewLogger(LogLevelInfo, "/nonexistent/dir/test.log")
		if err == nil {
			t.Error("expected error for invalid path")
		}
	})
}

func TestNewLoggerWithOptions_Defaults(t *testing.T) {
	l, err := NewLoggerWithOptions(LogLevelInfo, "", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	if l.format != "text" {
		t.Errorf("format = %q, want %q", l.format, "text")
	}
	if l.logEvery != 1 {
		t.Errorf("logEvery = %d, want 1", l.logEvery)
	}
	if _, err := NewLoggerWithOptions(LogLevelInfo, "", "xml", 1); err == nil {
		t.Error("expected error for unknown format")
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestLoggerLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelInfo, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Error("error-msg")
	l.Info("info-msg")
	l.Verbose("verbose-msg")
	l.Debug("debug-msg")
	l.Close()

	content := readLog(t, path)
	if !strings.Contains(content, "level=error msg=error-msg") {
		t.Errorf("log should contain error message, got: %s", content)
	}
	if !strings.Contains(content, "level=info msg=info-msg") {
		t.Error("log should contain info message")
	}
	if strings.Contains(content, "verbose-msg") {
		t.Error("log should NOT contain verbose message at Info level")
	}
	if strings.Contains(content, "debug-msg") {
		t.Error("log should NOT contain debug message at Info level")
	}
}

func TestLoggerSilentLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelSilent, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Error("should not appear")
	l.Info("should not appear")
	l.Close()

	if content := readLog(t, path); len(strings.TrimSpace(content)) > 0 {
		t.Error("silent logger should produce no output")
	}
}

func TestLoggerDebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelDebug, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Error("e")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")
	l.Close()

	content := readLog(t, path)
	for _, want := range []string{"level=error msg=e", "level=info msg=i", "level=debug msg=v", "level=trace msg=d"} {
		if !strings.Contains(content, want) {
			t.Errorf("log should contain %q", want)
		}
	}
}

func TestLoggerSampling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLoggerWithOptions(LogLevelVerbose, path, "text", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 9; i++ {
		l.Info("msg %d", i)
	}
	if l.counter != 9 {
		t.Errorf("counter = %d, want 9", l.counter)
	}
	l.Close()

	lines := strings.Split(strings.TrimSpace(readLog(t, path)), "\n")
	if len(lines) != 9 {
		t.Errorf("file logger should write all 9 messages, got %d", len(lines))
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLoggerWithOptions(LogLevelError, path, "json", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Error("test message")
	l.Close()

	content := readLog(t, path)
	if !strings.Contains(content, `"level":"error"`) {
		t.Errorf("JSON output should contain level, got: %s", content)
	}
	if !strings.Contains(content, `"message":"test message"`) {
		t.Errorf("JSON output should contain message key, got: %s", content)
	}
}

func TestSetGetLevel(t *testing.T) {
	l, _ := NewLogger(LogLevelInfo, "")
	defer l.Close()

	if l.GetLevel() != LogLevelInfo {
		t.Errorf("GetLevel() = %d, want %d", l.GetLevel(), LogLevelInfo)
	}

	l.SetLevel(LogLevelDebug)
	if l.GetLevel() != LogLevelDebug {
		t.Errorf("GetLevel() = %d, want %d", l.GetLevel(), LogLevelDebug)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"", LogLevelInfo},
		{"silent", LogLevelSilent},
		{"ERROR", LogLevelError},
		{"verbose", LogLevelVerbose},
		{"debug", LogLevelDebug},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogOperation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelVerbose, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.LogOperation("open", "valves", "crc16", true, 1.234, nil)
	l.LogOperation("position", "selector", "sum", false, 5.678, errors.New("checksum mismatch"))
	l.Close()

	content := readLog(t, path)
	for _, want := range []string{"SUCCESS", "FAILED", "device=valves", "dialect=sum", "1.234ms", `error="checksum mismatch"`} {
		if !strings.Contains(content, want) {
			t.Errorf("should contain %q, got: %s", want, content)
		}
	}
}

func TestLogStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelVerbose, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.LogStartup("valves", "tcp://127.0.0.1:10123", "valves.yaml", 1, "labctl.yaml")
	l.Close()

	content := readLog(t, path)
	if !strings.Contains(content, "Starting labctl session") {
		t.Error("should contain startup message")
	}
	if !strings.Contains(content, "tcp://127.0.0.1:10123") {
		t.Error("should contain transport")
	}
}

func TestLogHex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelDebug, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.LogHex("tx", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	l.Close()

	if content := readLog(t, path); !strings.Contains(content, "de ad be ef") {
		t.Errorf("should contain hex dump, got: %s", content)
	}
}

func TestLogHex_SkipsAtLowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(LogLevelInfo, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.LogHex("tx", []byte{0xDE, 0xAD})
	l.Close()

	if content := readLog(t, path); len(strings.TrimSpace(content)) > 0 {
		t.Error("LogHex at Info level should produce no output")
	}
}

func TestClose_NilFile(t *testing.T) {
	l, _ := NewLogger(LogLevelInfo, "")
	if err := l.Close(); err != nil {
		t.Errorf("Close with nil file should not error: %v", err)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	l.LogHex("tx", []byte{0x01})
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	var nilLogger *Logger
	nilLogger.Info("nil logger is a no-op")
}

package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// TestNewServer_LoggerInitialised verifies that NewServer populates the logger
// field so that server methods can call s.logger without a nil-dereference.
func TestNewServer_LoggerInitialised(t *testing.T) {
	s := newTestServer(t)
	if s.logger == nil {
		t.Fatal("logger is nil after NewServer(); expected slog.Default() to be used")
	}
}

// TestNewServer_LoggerOverridable verifies that tests can silence server logging
// by replacing s.logger with a handler that discards all output, without
// affecting the global default logger.
func TestNewServer_LoggerOverridable(t *testing.T) {
	s := newTestServer(t)

	s.logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))

	s.logger.Info("discarded message")
	if slog.Default() == s.logger {
		t.Error("overriding s.logger must not mutate slog.Default()")
	}
}

// TestInitLogger_TextFormat verifies that text output has no JSON framing.
func TestInitLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Info("hello", "key", "val")
	line := buf.String()
	if strings.HasPrefix(line, "{") {
		t.Errorf("text handler produced JSON output: %q", line)
	}
	if !strings.Contains(line, "hello") {
		t.Errorf("text handler output missing message: %q", line)
	}
}

// TestInitLogger_JSONFormat verifies that JSON output starts with "{".
func TestInitLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Info("hello", "key", "val")
	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Errorf("JSON handler output does not start with '{': %q", line)
	}
	if !strings.Contains(line, `"hello"`) {
		t.Errorf("JSON handler output missing message field: %q", line)
	}
}

// TestInitLogger_LevelFiltering verifies that debug messages are suppressed
// when the level is set to Info.
func TestInitLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Debug("should-be-suppressed")
	logger.Info("should-appear")

	out := buf.String()
	if strings.Contains(out, "should-be-suppressed") {
		t.Error("debug message appeared despite Info level filter")
	}
	if !strings.Contains(out, "should-appear") {
		t.Error("info message was suppressed unexpectedly")
	}
}

// noopWriter is an io.Writer that discards all output, used to silence
// server logging in tests without polluting os.Stderr.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should be filtered")
	logger.Info("should also be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}

	logger.Warn("visible warning")
	if !strings.Contains(buf.String(), "visible warning") {
		t.Fatalf("expected warning in output, got %q", buf.String())
	}
}

func TestLoggerWithRingAndSlot(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	ringLogger := logger.WithRing("test-ring")
	ringLogger.Info("opened")
	if !strings.Contains(buf.String(), "ring=test-ring") {
		t.Errorf("expected ring=test-ring in output, got %q", buf.String())
	}

	buf.Reset()
	slotLogger := ringLogger.WithSlot(3)
	slotLogger.Warn("sequence drift detected")
	out := buf.String()
	if !strings.Contains(out, "ring=test-ring") || !strings.Contains(out, "slot=3") {
		t.Errorf("expected both ring and slot fields, got %q", out)
	}
}

func TestLoggerArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debug("draining queue", "name", "ping", "count", 3)
	out := buf.String()
	if !strings.Contains(out, "name=ping") || !strings.Contains(out, "count=3") {
		t.Errorf("expected key=value args rendered, got %q", out)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected global Info to reach default logger, got %q", buf.String())
	}
}

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelDebug.String() != "DEBUG" || LevelError.String() != "ERROR" {
		t.Error("unexpected level string")
	}
	if LogLevel(42).String() != "UNKNOWN" {
		t.Error("expected UNKNOWN for out-of-range level")
	}
}

func TestLogOutputContainsSubsystem(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Info("TestSubsystem", "hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, "hello world") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "TestSubsystem") {
		t.Errorf("expected subsystem in output, got: %s", out)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Test", "should be suppressed")
	Info("Test", "should be suppressed too")
	Warn("Test", "should appear")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("low-level entries leaked through filter: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Test", errors.New("boom"), "operation failed")

	out := buf.String()
	if !strings.Contains(out, "boom") {
		t.Errorf("expected error attribute in output, got: %s", out)
	}
}

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevelMapsKnownLevels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"DEBUG": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"bogus": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNopLoggerMethodsAreSafeNoops(t *testing.T) {
	log := Nop()
	log.Debug("x")
	log.Info("x")
	log.Warn("x")
	log.Error("x")
	derived := log.With("account", "a@example.com")
	derived.Info("still safe")
}

func TestWithReturnsDerivedLoggerWithoutMutatingParent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bridge.log")

	log, err := New(Config{Level: LevelInfo, File: file})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	parent := log
	child := log.With("account", "a@example.com")

	if parent == child {
		t.Fatal("expected With to return a distinct Logger value")
	}

	parent.Info("parent message")
	child.Info("child message")

	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, "parent message") || !strings.Contains(out, "child message") {
		t.Fatalf("expected both messages in log output, got: %s", out)
	}
	if !strings.Contains(out, "a@example.com") {
		t.Fatalf("expected child's account field in log output, got: %s", out)
	}
}

func TestNewFiltersBelowConfiguredLevel(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bridge.log")

	log, err := New(Config{Level: LevelWarn, File: file})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("should not appear")
	log.Info("should not appear either")
	log.Warn("should appear")

	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(raw)
	if strings.Contains(out, "should not appear") {
		t.Fatalf("expected debug/info to be filtered out, got: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected warn message present, got: %s", out)
	}
}

package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func captureLogf(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestLeveledLogger_Filters(t *testing.T) {
	lines := captureLogf(t)

	l := NewLogger("pipeline", LevelWarn)
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	if len(*lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(*lines), *lines)
	}
	if (*lines)[0] != "[pipeline] WARN warn 3" {
		t.Errorf("line 0 = %q", (*lines)[0])
	}
	if !strings.HasPrefix((*lines)[1], "[pipeline] ERROR") {
		t.Errorf("line 1 = %q", (*lines)[1])
	}

	l.SetLevel(LevelDebug)
	l.Debugf("now visible")
	if got := (*lines)[len(*lines)-1]; got != "[pipeline] DEBUG now visible" {
		t.Errorf("debug line = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDiscard(t *testing.T) {
	lines := captureLogf(t)
	Discard.Errorf("nothing")
	if len(*lines) != 0 {
		t.Errorf("Discard wrote %q", *lines)
	}
}

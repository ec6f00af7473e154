package monitoring

import (
	"log"
	"strings"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level filters what a Logger emits.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Logger is the leveled logger components accept.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// LeveledLogger prefixes messages with a component name and level and hands
// them to Logf.
type LeveledLogger struct {
	mu     sync.RWMutex
	prefix string
	level  Level
}

// NewLogger returns a LeveledLogger for the named component.
func NewLogger(component string, level Level) *LeveledLogger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return &LeveledLogger{prefix: prefix, level: level}
}

// SetLevel changes the log level.
func (l *LeveledLogger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Level returns the current log level.
func (l *LeveledLogger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *LeveledLogger) logf(level Level, tag, format string, v ...interface{}) {
	if l.Level() < level {
		return
	}
	Logf(l.prefix+tag+format, v...)
}

func (l *LeveledLogger) Debugf(format string, v ...interface{}) {
	l.logf(LevelDebug, "DEBUG ", format, v...)
}

func (l *LeveledLogger) Infof(format string, v ...interface{}) {
	l.logf(LevelInfo, "", format, v...)
}

func (l *LeveledLogger) Warnf(format string, v ...interface{}) {
	l.logf(LevelWarn, "WARN ", format, v...)
}

func (l *LeveledLogger) Errorf(format string, v ...interface{}) {
	l.logf(LevelError, "ERROR ", format, v...)
}

// Discard is a Logger that drops everything.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}

// Package logging provides component-tagged structured logging shared by the
// transport packages and the ottool CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

const (
	ComponentBackend Component = "backend"
	ComponentConfig  Component = "config"
	ComponentUSB     Component = "usb"
	ComponentProxy   Component = "proxy"
	ComponentCLI     Component = "cli"
)

// Format selects the handler used by SetFormat.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	level = new(slog.LevelVar)

	mu     sync.RWMutex
	logger *slog.Logger
)

func init() {
	level.Set(slog.LevelWarn)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel sets the minimum level for every component.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetFormat replaces the default logger with one writing to w in the given
// format. A nil writer means os.Stderr.
func SetFormat(format Format, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	SetLogger(slog.New(h))
}

// SetLogger replaces the default logger.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// For returns the default logger tagged with the component.
func For(c Component) *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l.With("component", string(c))
}

// Debug logs at debug level for the component.
func Debug(c Component, msg string, args ...any) {
	For(c).Debug(msg, args...)
}

// Info logs at info level for the component.
func Info(c Component, msg string, args ...any) {
	For(c).Info(msg, args...)
}

// Warn logs at warn level for the component.
func Warn(c Component, msg string, args ...any) {
	For(c).Warn(msg, args...)
}

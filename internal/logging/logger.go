package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Logger = *slog.Logger

var (
	Group = slog.Group

	mu      sync.RWMutex
	handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
)

// Config selects the minimum level and output format.
type Config struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// Configure installs the process-wide handler used by GetLogger.
func Configure(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	mu.Lock()
	handler = h
	mu.Unlock()

	slog.SetDefault(slog.New(h))
}

// GetLogger returns a logger tagged with the component name.
func GetLogger(name string) Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slog.New(handler).With("logger", name)
}

// Discard is a logger that drops everything.
func Discard() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Package logging builds the slog logger shared by the CLI and the browser.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "", "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelWarn, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", s)
	}
}

type Config struct {
	Level Level
	JSON  bool
	// Writer defaults to stderr.
	Writer io.Writer
	// LogDir, when set, also writes JSON records to <LogDir>/staging_<date>.log.
	LogDir string
}

// New returns the logger and a close func for the optional log file.
func New(cfg Config) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	closeFn := func() error { return nil }
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o750); err == nil {
			name := fmt.Sprintf("staging_%s.log", time.Now().Format(time.DateOnly))
			f, err := os.OpenFile(filepath.Join(cfg.LogDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
			if err == nil {
				w = io.MultiWriter(w, f)
				closeFn = f.Close
			}
		}
	}

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", "staging"), closeFn
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

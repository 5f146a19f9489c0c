// Package logging sets up BuildPulse's structured logger: a rotating file
// handler backed by lumberjack, with verbosity gated by BUILDPULSE_DEBUG.
package logging

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. Path is the log file; an empty Path logs to
// stderr only (used by tests and one-off CLI invocations).
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the process-wide logger. Debug() gates slog.LevelDebug;
// everything else runs at slog.LevelInfo.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if Debug() {
		level = slog.LevelDebug
	}

	var writer = os.Stderr
	handlerOpts := &slog.HandlerOptions{Level: level}

	if opts.Path == "" {
		return slog.New(slog.NewTextHandler(writer, handlerOpts))
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    orDefault(opts.MaxSizeMB, 50),
		MaxBackups: orDefault(opts.MaxBackups, 5),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
	}
	return slog.New(slog.NewTextHandler(rotator, handlerOpts))
}

// Debug reports whether BUILDPULSE_DEBUG is set to a non-empty value.
func Debug() bool {
	return os.Getenv("BUILDPULSE_DEBUG") != ""
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

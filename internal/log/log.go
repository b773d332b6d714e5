// Package log centralizes process-wide logger construction: a single
// zerolog.Logger, optionally rotated to disk through lumberjack, with
// a per-process trace id attached to every line so log output from
// different processes can still be told apart.
package log

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/pborman/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls where and how the process logs.
type Config struct {
	// Level is one of zerolog's named levels ("debug", "info",
	// "warn", "error"); unrecognized or empty falls back to "info".
	Level string
	// FilePath, if non-empty, rotates log output through lumberjack
	// instead of writing to stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console, when true, wraps the writer in zerolog's human-
	// readable ConsoleWriter instead of emitting raw JSON lines.
	Console bool
}

// traceID is generated once per process and attached to every log
// line emitted through the logger this package builds, so a operator
// grepping aggregated logs from many processes can isolate one run.
var traceID = uuid.New()

// New builds the process logger per cfg and installs it as the
// package-global logger (github.com/rs/zerolog/log), returning it too
// for callers that want to hold their own reference.
func New(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(lvl)
	logger := zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("trace_id", traceID).
		Logger()

	log.Logger = logger
	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Package logging builds the application's zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and an optional rotating file.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // "console" or "json"
	File   string // empty = stdout only

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a logger writing to out and, when File is set, to a rotating
// log file. Unknown levels fall back to info.
func New(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{out}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 10),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   true,
		})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("service", "payroll-schedules").
		Logger()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

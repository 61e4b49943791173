// Package logger wraps zerolog with the call-site helpers used across the
// engine: package-level Infof/Warnf/Errorf/Debugf backed by one process-wide
// logger, and With() for component sub-loggers tagged with fixed fields.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Init (re)configures the global logger. Safe to call once at startup after
// config load; the init() above gives every package a usable logger even
// before main() runs.
func Init(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stdout
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	base = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// L returns the process-wide logger.
func L() *zerolog.Logger { return &base }

// With starts a sub-logger with one fixed string field, e.g.
// logger.With("venue", "binance") for a per-venue ingress client.
func With(key, value string) zerolog.Logger {
	return base.With().Str(key, value).Logger()
}

func Debugf(format string, args ...interface{}) { base.Debug().Msgf(format, args...) }
func Infof(format string, args ...interface{})  { base.Info().Msgf(format, args...) }
func Warnf(format string, args ...interface{})  { base.Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { base.Error().Msgf(format, args...) }

// Package logging wraps zerolog behind a small interface so call sites
// don't depend on the concrete logging library.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logging surface used throughout the service.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string, err error)
	With(fields map[string]interface{}) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

// New builds a Logger writing JSON lines to stdout at the given level.
// level is any name zerolog.ParseLevel accepts (e.g. "debug", "info",
// "warn", "error"); a value it rejects falls back to info.
func New(level string) Logger {
	zerolog.SetGlobalLevel(parseLevel(level))
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return &zerologLogger{logger: l}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *zerologLogger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.logger.Warn().Msg(msg) }

func (l *zerologLogger) Error(msg string, err error) {
	l.logger.Error().Err(err).Msg(msg)
}

func (l *zerologLogger) With(fields map[string]interface{}) Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologLogger{logger: ctx.Logger()}
}

// Nop is a Logger that discards everything, used in tests that don't
// care about log output.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

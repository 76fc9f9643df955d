// Package logger wraps zerolog behind the small surface the rest of the
// module uses: a component-scoped logger with leveled, printf-style methods.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger writing to w at the given level.
func New(component string, w io.Writer, level zerolog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// NewDefault creates a stderr logger at the level named by LOG_LEVEL,
// defaulting to info.
func NewDefault(component string) *Logger {
	return New(component, os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Debug(msg string)                          { l.zl.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(msg string)                           { l.zl.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(msg string)                           { l.zl.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(msg string)                          { l.zl.Error().Msg(msg) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Z exposes the underlying zerolog logger for call sites that need
// structured fields beyond the printf helpers.
func (l *Logger) Z() *zerolog.Logger { return &l.zl }

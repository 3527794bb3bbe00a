package applog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// LevelTrace sits below slog.LevelDebug and is used for lifecycle chatter.
const LevelTrace = slog.Level(-8)

// DefaultLogger wraps slog.logger and implements AppLogger.
type DefaultLogger struct {
	logger *slog.Logger
	exit   func(int)
}

// NewAppDefaultLogger creates a new DefaultLogger writing to stdout at the
// level configured under log.level.
func NewAppDefaultLogger() *DefaultLogger {
	return NewAppLogger(os.Stdout, viper.GetString("log.level"))
}

// NewAppLogger creates a DefaultLogger writing text records to w.
func NewAppLogger(w io.Writer, level string) *DefaultLogger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: false,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return &DefaultLogger{
		logger: slog.New(slog.NewTextHandler(w, opts)),
		exit:   os.Exit,
	}
}

func (l *DefaultLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, withSource(args)...)
}

func (l *DefaultLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, withSource(args)...)
}

func (l *DefaultLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, withSource(args)...)
}

func (l *DefaultLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, withSource(args)...)
}

func (l *DefaultLogger) Trace(msg string, args ...any) {
	l.logger.Log(context.Background(), LevelTrace, msg, withSource(args)...)
}

// Fatal logs at error level and terminates the process with status 1.
func (l *DefaultLogger) Fatal(msg string, args ...any) {
	l.logger.Error(msg, withSource(args)...)
	l.exit(1)
}

// withSource prepends the caller of the public logging method. The skip
// depth is fixed: withSource <- DefaultLogger.X <- caller.
func withSource(args []any) []any {
	src := callerSource(2)
	if src == "" {
		return args
	}
	return append([]any{"source", src}, args...)
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func parseLogLevel(s string) slog.Level {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// Package log is the coordinator's global structured logger: leveled
// slog with text output for development and JSON when GO_ENV=production.
package log

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init configures the global logger once. Unknown levels fall back to
// info.
func Init(level string) {
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: parseLevel(level)}

		var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
		if os.Getenv("GO_ENV") == "production" {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		}

		logger = slog.New(handler)
		slog.SetDefault(logger)
	})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func global() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Info logs at info level.
func Info(msg string, args ...any) {
	global().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	global().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	global().Error(msg, args...)
}

// With returns a child logger carrying the given attributes, for
// components that hold their own *slog.Logger.
func With(args ...any) *slog.Logger {
	return global().With(args...)
}

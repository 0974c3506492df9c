// Package logger provides a structured, levelled logger built on log/slog
// for the rest of this module. Unlike the original Kashvi version, there is
// no per-request correlation here — graphcache has no HTTP request boundary
// — just a process-wide logger whose format and level follow
// config.AppEnv()/config.LogLevel().
package logger

import (
	"log/slog"
	"os"

	"github.com/shashiranjanraj/graphcache/config"
)

// L is the process-wide base logger. Safe for concurrent use (slog.Logger
// is immutable once built).
var L *slog.Logger

// levelVar backs the handler's level so SetLevel can adjust it after
// init without rebuilding L.
var levelVar = new(slog.LevelVar)

func init() {
	levelVar.Set(parseLevel(config.LogLevel()))
	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	switch config.AppEnv() {
	case "production", "prod":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	L = slog.New(handler)
	slog.SetDefault(L)
}

func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelDebug
	}
	return level
}

// SetLevel adjusts the process-wide log level at runtime, overriding
// whatever config.LogLevel() resolved at startup.
func SetLevel(level slog.Level) { levelVar.Set(level) }

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs at INFO level.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs at WARN level.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs at ERROR level.
func Error(msg string, args ...any) { L.Error(msg, args...) }

// With returns a logger with the given key/value pairs attached — used by
// the coordinator and mutation engine to tag log lines with callerId /
// mutationName without threading a *slog.Logger through every call.
func With(args ...any) *slog.Logger { return L.With(args...) }

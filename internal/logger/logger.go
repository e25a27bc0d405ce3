// Package logger is a thin slog facade with printf-style helpers shared by
// every component. Output and level can be swapped at runtime.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level   slog.LevelVar
	current atomic.Pointer[slog.Logger]
)

func init() {
	current.Store(build(os.Stdout))
}

func build(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level}))
}

// SetOutput replaces the log destination. A nil writer restores stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	current.Store(build(w))
}

// SetLevel accepts debug, info, warn or error; anything else means info.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debugf(format string, args ...any) { current.Load().Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { current.Load().Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { current.Load().Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { current.Load().Error(fmt.Sprintf(format, args...)) }

// InfoBlock logs a multi-line report one line at a time so every line carries
// the structured prefix.
func InfoBlock(block string) {
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if line != "" {
			Infof("%s", line)
		}
	}
}

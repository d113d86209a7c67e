package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// Output goes to stderr (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Tag prefixes every line with a transfer id, e.g. "[1a2b3c4d] ...".
// Key/value pairs passed after the message are rendered as pterm args.
type Tag uint32

func (t Tag) Debug(msg string, kv ...any) {
	pterm.DefaultLogger.Debug(t.prefix(msg), pterm.DefaultLogger.Args(kv...))
}

func (t Tag) Info(msg string, kv ...any) {
	pterm.DefaultLogger.Info(t.prefix(msg), pterm.DefaultLogger.Args(kv...))
}

func (t Tag) Warn(msg string, kv ...any) {
	pterm.DefaultLogger.Warn(t.prefix(msg), pterm.DefaultLogger.Args(kv...))
}

func (t Tag) Error(msg string, kv ...any) {
	pterm.DefaultLogger.Error(t.prefix(msg), pterm.DefaultLogger.Args(kv...))
}

func (t Tag) prefix(msg string) string {
	return fmt.Sprintf("[%08x] %s", uint32(t), msg)
}

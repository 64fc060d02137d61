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

// Leveled logging on the pterm default logger, which writes to stderr.
// LogSuccess is Info under another name; the logger has no success level.

func LogDebug(format string, args ...any)   { pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...)) }
func LogInfo(format string, args ...any)    { pterm.DefaultLogger.Info(fmt.Sprintf(format, args...)) }
func LogSuccess(format string, args ...any) { pterm.DefaultLogger.Info(fmt.Sprintf(format, args...)) }
func LogWarning(format string, args ...any) { pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...)) }
func LogError(format string, args ...any)   { pterm.DefaultLogger.Error(fmt.Sprintf(format, args...)) }

// Tag identifies one link session in logs. Every line logged through a Tag
// starts with it, so a session's history can be grepped out of a busy
// server log.
type Tag uint32

func (t Tag) String() string { return fmt.Sprintf("%08x", uint32(t)) }

func (t Tag) prefix(format string) string { return "[" + t.String() + "] " + format }

func (t Tag) Debug(format string, args ...any)   { LogDebug(t.prefix(format), args...) }
func (t Tag) Info(format string, args ...any)    { LogInfo(t.prefix(format), args...) }
func (t Tag) Success(format string, args ...any) { LogSuccess(t.prefix(format), args...) }
func (t Tag) Warning(format string, args ...any) { LogWarning(t.prefix(format), args...) }
func (t Tag) Error(format string, args ...any)   { LogError(t.prefix(format), args...) }

// EnableDebug shows debug lines, which are hidden by default.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Quiet silences all pterm output, including the logger.
func Quiet() {
	pterm.DisableOutput()
}

// Package logging wraps github.com/apsdehal/go-logger the way this
// codebase's original DreamchaserJin-GoDance utils package wraps it: one
// process-wide handle constructed at startup, with level methods that
// format and forward rather than exposing the underlying logger directly.
package logging

import (
	"fmt"
	"os"

	golog "github.com/apsdehal/go-logger"
)

// Logger is a thin wrapper satisfying allocator.Logger and anything else
// in this codebase that wants leveled, formatted logging without importing
// go-logger directly.
type Logger struct {
	handle  *golog.Logger
	service string
}

// New constructs a Logger for the named service, logging to stderr. A
// logging construction failure is not fatal to the caller: it falls back
// to a Logger whose handle is nil, and the level methods degrade to
// fmt.Fprintf on stderr so a misconfigured logger never silences an
// operator-visible warning.
func New(service string) *Logger {
	handle, err := golog.New(service, os.Stderr)
	if err != nil {
		return &Logger{service: service}
	}
	return &Logger{handle: handle, service: service}
}

func (l *Logger) log(level golog.LogLevel, fallback string, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.handle == nil {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", l.service, fallback, msg)
		return
	}
	l.handle.Log(level, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(golog.DebugLevel, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(golog.InfoLevel, "INFO", format, args...)
}

// Warning logs at warning level.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(golog.WarningLevel, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(golog.ErrorLevel, "ERROR", format, args...)
}

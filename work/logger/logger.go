// Package logger provides the application's leveled logging. Output goes
// through the stdlib log package so timestamps and destination stay under the
// host's control; this package only adds level gating and the [LEVEL] tag.
//
// Call sites prefix their message with "{pkg/file - Func}" so a log line can
// be traced to its origin without file:line machinery.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Level orders log severities; messages below the active level are dropped.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// active holds the current minimum level. Reads outnumber writes by orders of
// magnitude, so an atomic word beats a mutex here.
var active atomic.Int32

func init() {
	active.Store(int32(LevelInfo))
}

// parseLevel maps a level name to its Level, defaulting to info so a typo in
// configuration never silences the log entirely.
func parseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLogLevel changes the active minimum level by name. Unknown names fall
// back to info.
func SetLogLevel(name string) {
	active.Store(int32(parseLevel(name)))
}

// GetLogLevel reports the active minimum level by name.
func GetLogLevel() string {
	return levelNames[Level(active.Load())]
}

// emit formats and writes one line when the level clears the gate.
func emit(level Level, format string, v ...any) {
	if level < Level(active.Load()) {
		return
	}
	log.Printf("[%s] %s", levelNames[level], fmt.Sprintf(format, v...))
}

// Debug logs diagnostic detail, suppressed unless debug logging is enabled.
func Debug(format string, v ...any) { emit(LevelDebug, format, v...) }

// Info logs normal operational messages.
func Info(format string, v ...any) { emit(LevelInfo, format, v...) }

// Warn logs recoverable problems worth an operator's attention.
func Warn(format string, v ...any) { emit(LevelWarn, format, v...) }

// Error logs failures.
func Error(format string, v ...any) { emit(LevelError, format, v...) }

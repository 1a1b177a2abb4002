package logger

import (
	"sync"
)

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	// globalLogger holds the singleton logger instance.
	globalLogger *Logger
	once         sync.Once
)

// Get returns a singleton logger configured with the provided level.
// The first call initializes the logger; subsequent calls ignore the level
// and return the already initialized instance.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level)
	})
	return globalLogger
}

// Nop returns a logger that discards everything. Meant for tests and
// components constructed without a logger.
func Nop() *Logger {
	return newNopLogger()
}

// SetLevel changes the level of the singleton logger after config is loaded.
func SetLevel(level string) {
	if globalLogger == nil || globalLogger.level == nil {
		return
	}
	globalLogger.level.SetLevel(toZapLevel(level))
}

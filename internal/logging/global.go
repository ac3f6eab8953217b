package logging

import (
	"os"
	"sync"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

func init() {
	globalLogger = DefaultLogger()
}

// SetGlobal sets the global logger.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the global logger.
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Configure creates and sets a global logger from config values.
// Caller info is added at debug level only.
func Configure(level, format string) *Logger {
	l := New(Config{
		Level:     ParseLevel(level),
		Format:    ParseFormat(format),
		Output:    os.Stderr,
		AddCaller: ParseLevel(level) == LevelDebug,
	})
	SetGlobal(l)
	return l
}


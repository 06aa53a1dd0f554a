// Package logger dispatches log calls to every configured backend. Calls
// before Init are dropped.
package logger

import "sync/atomic"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type level int

const (
	levelPrint level = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelFatal
)

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var singleton atomic.Pointer[Logger]

// Init replaces the global backends. The CLI calls it once per command, so
// it is safe to call while other goroutines are logging.
func Init(instances ...LoggerInstance) {
	singleton.Store(&Logger{instances: instances})
}

func dispatch(lvl level, message string, keyvals []any) {
	l := singleton.Load()
	if l == nil {
		return
	}
	for _, inst := range l.instances {
		switch lvl {
		case levelDebug:
			inst.Debug(message, keyvals...)
		case levelInfo:
			inst.Info(message, keyvals...)
		case levelWarn:
			inst.Warn(message, keyvals...)
		case levelError:
			inst.Error(message, keyvals...)
		case levelFatal:
			inst.Fatal(message, keyvals...)
		default:
			inst.Log(message, keyvals...)
		}
	}
}

// Log writes without a level prefix.
func Log(message string, keyvals ...any) { dispatch(levelPrint, message, keyvals) }

// Debug logs at DEBUG level on every backend.
func Debug(message string, keyvals ...any) { dispatch(levelDebug, message, keyvals) }

// Info logs at INFO level on every backend.
func Info(message string, keyvals ...any) { dispatch(levelInfo, message, keyvals) }

// Warn logs at WARN level on every backend.
func Warn(message string, keyvals ...any) { dispatch(levelWarn, message, keyvals) }

// Error logs at ERROR level on every backend.
func Error(message string, keyvals ...any) { dispatch(levelError, message, keyvals) }

// Fatal logs and exits the process through the backends. Without backends
// it is a no-op, so callers must not rely on it to stop execution in tests.
func Fatal(message string, keyvals ...any) { dispatch(levelFatal, message, keyvals) }

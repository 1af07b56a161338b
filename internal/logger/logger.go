// Package logger provides module-scoped structured logging on top of log/slog.
//
// A CentralLogger owns the outputs; components receive a Logger from
// CentralLogger.Module and attach fields with the typed constructors:
//
//	log := central.Module("engine")
//	log.Info("alert verified", logger.String("alert_id", "7"))
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel names a severity as it appears in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is one key/value pair attached to a record.
type Field struct {
	Key   string
	Value any
}

// Keys are interned; the same handful of keys repeats on every line.
func field(key string, value any) Field {
	return Field{Key: unique.Make(key).Value(), Value: value}
}

var (
	errorKey   = unique.Make("error").Value()
	moduleKey  = unique.Make("module").Value()
	traceIDKey = unique.Make("trace_id").Value()
)

// Logger is what components depend on. Implementations must accept calls on
// a nil receiver.
type Logger interface {
	Module(name string) Logger
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

func String(key, value string) Field         { return field(key, value) }
func Int(key string, value int) Field        { return field(key, value) }
func Int64(key string, value int64) Field    { return field(key, value) }
func Uint64(key string, value uint64) Field  { return field(key, value) }
func Bool(key string, value bool) Field      { return field(key, value) }
func Time(key string, value time.Time) Field { return field(key, value) }

// Float64 values are rounded to three decimals on output.
func Float64(key string, value float64) Field { return field(key, value) }

// Duration values are rendered like time.Duration.String, to the millisecond.
func Duration(key string, value time.Duration) Field { return field(key, value) }

// Any is for values without a dedicated constructor.
func Any(key string, value any) Field { return field(key, value) }

// Error always uses the key "error" and stores the message, not the error.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

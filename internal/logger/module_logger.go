package logger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"
)

// moduleLogger is the Logger handed out by CentralLogger.Module.
// Fields added with With are kept as slog attributes and replayed per record.
type moduleLogger struct {
	module string
	out    *slog.Logger
	level  slog.Level
	attrs  []slog.Attr
}

func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	child := *m
	child.module = m.module + "." + name
	return &child
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	child := *m
	child.attrs = slices.Grow(slices.Clip(m.attrs), len(fields))
	for _, f := range fields {
		child.attrs = append(child.attrs, toAttr(f))
	}
	return &child
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	if id := traceIDFrom(ctx); id != "" {
		return m.With(String(traceIDKey, id))
	}
	return m
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(traceLevelValue, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(parseLogLevel(string(level)), msg, fields)
}

// Flush is a no-op; files belong to the CentralLogger.
func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(m.attrs)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	attrs = append(attrs, m.attrs...)
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}
	m.out.LogAttrs(context.Background(), level, msg, attrs...)
}

// toAttr converts a Field. Floats keep three decimals and durations are
// rendered as strings since slog.Duration prints nanoseconds in JSON.
func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case float32:
		return slog.Float64(f.Key, math.Round(float64(v)*1000)/1000)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}

// NewDiscardLogger returns a Logger that drops everything, for components
// constructed without one.
func NewDiscardLogger() Logger {
	return &moduleLogger{
		out:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		level: slog.LevelError + 1,
	}
}

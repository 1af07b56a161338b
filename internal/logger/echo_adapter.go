package logger

import (
	"fmt"
	"io"

	echolog "github.com/labstack/gommon/log"
)

// EchoAdapter routes Echo's internal logging (startup errors, binder
// warnings) through a module logger. Output, prefix, level and header
// settings are owned by the central logger, so their setters are no-ops.
//
//	e := echo.New()
//	e.Logger = logger.NewEchoAdapter(log.Module("echo"))
type EchoAdapter struct {
	log Logger
}

// NewEchoAdapter wraps log. A nil log discards everything.
func NewEchoAdapter(log Logger) *EchoAdapter {
	if log == nil {
		log = NewDiscardLogger()
	}
	return &EchoAdapter{log: log}
}

func (a *EchoAdapter) Output() io.Writer    { return io.Discard }
func (a *EchoAdapter) SetOutput(io.Writer)  {}
func (a *EchoAdapter) Prefix() string       { return "" }
func (a *EchoAdapter) SetPrefix(string)     {}
func (a *EchoAdapter) Level() echolog.Lvl   { return echolog.INFO }
func (a *EchoAdapter) SetLevel(echolog.Lvl) {}
func (a *EchoAdapter) SetHeader(string)     {}

func (a *EchoAdapter) emit(level LogLevel, args []any) {
	a.log.Log(level, fmt.Sprint(args...))
}

func (a *EchoAdapter) emitf(level LogLevel, format string, args []any) {
	a.log.Log(level, fmt.Sprintf(format, args...))
}

func (a *EchoAdapter) emitj(level LogLevel, j echolog.JSON) {
	a.log.Log(level, "echo", Any("data", j))
}

func (a *EchoAdapter) Print(i ...any)                 { a.emit(LogLevelInfo, i) }
func (a *EchoAdapter) Printf(format string, i ...any) { a.emitf(LogLevelInfo, format, i) }
func (a *EchoAdapter) Printj(j echolog.JSON)          { a.emitj(LogLevelInfo, j) }
func (a *EchoAdapter) Debug(i ...any)                 { a.emit(LogLevelDebug, i) }
func (a *EchoAdapter) Debugf(format string, i ...any) { a.emitf(LogLevelDebug, format, i) }
func (a *EchoAdapter) Debugj(j echolog.JSON)          { a.emitj(LogLevelDebug, j) }
func (a *EchoAdapter) Info(i ...any)                  { a.emit(LogLevelInfo, i) }
func (a *EchoAdapter) Infof(format string, i ...any)  { a.emitf(LogLevelInfo, format, i) }
func (a *EchoAdapter) Infoj(j echolog.JSON)           { a.emitj(LogLevelInfo, j) }
func (a *EchoAdapter) Warn(i ...any)                  { a.emit(LogLevelWarn, i) }
func (a *EchoAdapter) Warnf(format string, i ...any)  { a.emitf(LogLevelWarn, format, i) }
func (a *EchoAdapter) Warnj(j echolog.JSON)           { a.emitj(LogLevelWarn, j) }
func (a *EchoAdapter) Error(i ...any)                 { a.emit(LogLevelError, i) }
func (a *EchoAdapter) Errorf(format string, i ...any) { a.emitf(LogLevelError, format, i) }
func (a *EchoAdapter) Errorj(j echolog.JSON)          { a.emitj(LogLevelError, j) }

// Fatal and Panic log at error level and panic. The process is never exited
// from here; Echo's recover middleware or the caller decides.
func (a *EchoAdapter) Fatal(i ...any) { a.Panic(i...) }

func (a *EchoAdapter) Fatalf(format string, i ...any) { a.Panicf(format, i...) }

func (a *EchoAdapter) Fatalj(j echolog.JSON) { a.Panicj(j) }

func (a *EchoAdapter) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	a.log.Error(msg)
	panic(msg)
}

func (a *EchoAdapter) Panicf(format string, i ...any) {
	msg := fmt.Sprintf(format, i...)
	a.log.Error(msg)
	panic(msg)
}

func (a *EchoAdapter) Panicj(j echolog.JSON) {
	a.emitj(LogLevelError, j)
	panic(fmt.Sprintf("%v", j))
}

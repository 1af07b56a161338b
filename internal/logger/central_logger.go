package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "time/tzdata"
)

// traceLevelValue sits below slog.LevelDebug and renders as TRACE.
const traceLevelValue = slog.Level(-8)

const (
	logDirMode  = 0o700
	logFileMode = 0o600
)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the process logger returned by Global.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the process logger. Before SetGlobal it is an info-level
// console logger on stdout.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		cfg := &LoggingConfig{}
		applyConfigDefaults(cfg)
		global = &CentralLogger{
			config:  cfg,
			tz:      time.Local,
			console: os.Stdout,
			routes:  make(map[string]route),
			files:   make(map[string]*os.File),
		}
		global.fallback = route{
			handler: consoleHandler(os.Stdout, slog.LevelInfo, time.Local),
			level:   slog.LevelInfo,
		}
	}
	return global
}

type traceKey struct{}

// TraceIDKey is the context key read by Logger.WithContext.
var TraceIDKey = traceKey{}

// WithTraceID stores a request trace ID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// route is where one module's records go and the lowest level it accepts.
type route struct {
	handler slog.Handler
	level   slog.Level
}

// CentralLogger owns the log outputs and hands out module loggers.
// Console lines are text; files are JSON.
type CentralLogger struct {
	config   *LoggingConfig
	tz       *time.Location
	console  io.Writer
	fallback route

	mu     sync.RWMutex
	routes map[string]route    // resolved per module on first use
	files  map[string]*os.File // keyed by path; "" is never present
}

// Option customizes a CentralLogger at construction.
type Option func(*CentralLogger)

// WithConsoleWriter redirects console output, mainly for tests.
func WithConsoleWriter(w io.Writer) Option {
	return func(cl *CentralLogger) { cl.console = w }
}

// NewCentralLogger opens every configured output. Module files are opened
// eagerly so a bad path fails startup instead of the first log line.
func NewCentralLogger(cfg *LoggingConfig, opts ...Option) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.New("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:  cfg,
		tz:      tz,
		console: os.Stdout,
		routes:  make(map[string]route),
		files:   make(map[string]*os.File),
	}
	for _, opt := range opts {
		opt(cl)
	}

	if err := cl.buildFallback(); err != nil {
		_ = cl.Close()
		return nil, err
	}
	for module, out := range cfg.ModuleOutputs {
		if !out.Enabled {
			continue
		}
		if _, err := cl.open(out.FilePath); err != nil {
			_ = cl.Close()
			return nil, fmt.Errorf("module %s: %w", module, err)
		}
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

// buildFallback assembles the console and main file outputs shared by every
// module without a dedicated route.
func (cl *CentralLogger) buildFallback() error {
	var hs []slog.Handler
	lowest := slog.LevelError + 1

	if c := cl.config.Console; c.Enabled {
		lvl := parseLogLevel(c.Level)
		hs = append(hs, consoleHandler(cl.console, lvl, cl.tz))
		lowest = min(lowest, lvl)
	}
	if f := cl.config.FileOutput; f.Enabled {
		file, err := cl.open(f.Path)
		if err != nil {
			return err
		}
		lvl := parseLogLevel(f.Level)
		hs = append(hs, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl}))
		lowest = min(lowest, lvl)
	}
	if len(hs) == 0 {
		lvl := parseLogLevel(cl.config.DefaultLevel)
		hs = append(hs, consoleHandler(cl.console, lvl, cl.tz))
		lowest = lvl
	}

	cl.fallback = route{handler: joinHandlers(hs), level: lowest}
	return nil
}

// open returns the append-mode file for path, opening it once.
func (cl *CentralLogger) open(path string) (*os.File, error) {
	if f, ok := cl.files[path]; ok {
		return f, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, logDirMode); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	cl.files[path] = f
	return f, nil
}

// Module returns a logger whose records carry module=name.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	r := cl.routeFor(name)
	return &moduleLogger{
		module: name,
		out:    slog.New(r.handler),
		level:  r.level,
	}
}

func (cl *CentralLogger) routeFor(module string) route {
	cl.mu.RLock()
	r, ok := cl.routes[module]
	cl.mu.RUnlock()
	if ok {
		return r
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if r, ok := cl.routes[module]; ok {
		return r
	}
	r = cl.resolveLocked(module)
	cl.routes[module] = r
	return r
}

// resolveLocked applies, in order: the module's own output, its level
// override, then the default level over the shared outputs.
func (cl *CentralLogger) resolveLocked(module string) route {
	level := parseLogLevel(cl.config.DefaultLevel)
	if s, ok := cl.config.ModuleLevels[module]; ok {
		level = parseLogLevel(s)
	}

	out, ok := cl.config.ModuleOutputs[module]
	if !ok || !out.Enabled {
		return route{handler: cl.fallback.handler, level: level}
	}
	if out.Level != "" {
		level = parseLogLevel(out.Level)
	}

	var hs []slog.Handler
	if f, ok := cl.files[out.FilePath]; ok {
		hs = append(hs, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}
	if out.ConsoleAlso && cl.config.Console.Enabled {
		hs = append(hs, consoleHandler(cl.console, level, cl.tz))
	}
	if len(hs) == 0 {
		return route{handler: cl.fallback.handler, level: level}
	}
	return route{handler: joinHandlers(hs), level: level}
}

// Flush syncs every open log file.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	var errs []error
	for path, f := range cl.files {
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every log file. Loggers already handed out keep working
// against the console only if they were routed there.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	var errs []error
	for path, f := range cl.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(cl.files, path)
	}
	return errors.Join(errs...)
}

func joinHandlers(hs []slog.Handler) slog.Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return newMultiWriterHandler(hs...)
}

// consoleHandler renders text without timestamps; the service manager adds
// its own. Time-valued fields are shown in tz.
func consoleHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		if a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		if a.Key == slog.LevelKey {
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
				a.Value = slog.StringValue("TRACE")
			}
			return a
		}
		if a.Value.Kind() == slog.KindTime {
			a.Value = slog.StringValue(a.Value.Time().In(tz).Format(time.RFC3339))
		}
		return a
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replace})
}

func parseLogLevel(level string) slog.Level {
	switch LogLevel(strings.ToLower(strings.TrimSpace(level))) {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn, "warning":
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

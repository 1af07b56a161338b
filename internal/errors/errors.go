// Package errors provides categorized errors with component context and
// optional telemetry reporting. It passes the standard library helpers
// through so callers need a single import.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for status mapping, metrics and telemetry.
type ErrorCategory string

// CategorizedError is implemented by errors that know their own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	// caller-facing outcomes of user actions
	CategoryValidation        ErrorCategory = "validation"
	CategoryNotFound          ErrorCategory = "not-found"
	CategoryPermission        ErrorCategory = "permission-denied"
	CategoryInvalidTransition ErrorCategory = "invalid-transition"

	// operational failures, reported to telemetry
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryNetwork        ErrorCategory = "network"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryIngest         ErrorCategory = "detection-ingest"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryGeneric        ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with a category, the component that raised
// it and free-form context. It is immutable once built.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Timestamp time.Time

	component string
	context   map[string]any
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is reports a match when target is an EnhancedError of the same category,
// so category sentinels work with errors.Is.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return false
}

// GetComponent returns the component that raised the error.
func (ee *EnhancedError) GetComponent() string {
	return ee.component
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.context == nil {
		return nil
	}
	return maps.Clone(ee.context)
}

// markReported returns false if the error was already reported.
func (ee *EnhancedError) markReported() bool {
	return ee.reported.CompareAndSwap(false, true)
}

// ErrorBuilder assembles an EnhancedError.
//
//	errors.Newf("alert %d not found", id).
//		Component("alert").
//		Category(errors.CategoryNotFound).
//		Context("alert_id", id).
//		Build()
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder with a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the raising component. Detected from the call stack when unset.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. Derived from the wrapped error when unset.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context attaches a key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 2)
	}
	eb.context[key] = value
	return eb
}

// Build creates the error and hands it to the telemetry reporter, if any.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Timestamp: time.Now(),
		component: eb.component,
		context:   eb.context,
	}
	if ee.Err == nil {
		ee.Err = stderrors.New("unknown error")
	}
	if ee.Category == "" {
		ee.Category = detectCategory(eb.err)
	}
	if ee.component == "" {
		ee.component = detectComponent()
	}

	if hasActiveReporting.Load() {
		reportToTelemetry(ee)
	}
	return ee
}

// hasActiveReporting is set while an enabled telemetry reporter is installed.
var hasActiveReporting atomic.Bool

// componentPaths maps package paths to component names, most specific first.
var componentPaths = []struct{ path, component string }{
	{"wildalert/internal/api", "api"},
	{"wildalert/internal/alert", "alert"},
	{"wildalert/internal/engine", "engine"},
	{"wildalert/internal/ingest", "ingest"},
	{"wildalert/internal/notice", "notice"},
	{"wildalert/internal/events", "events"},
	{"wildalert/internal/mqtt", "mqtt"},
	{"wildalert/internal/conf", "configuration"},
	{"wildalert/internal/session", "session"},
	{"wildalert/internal/app", "app"},
}

// detectComponent returns the component of the first caller outside this package.
func detectComponent() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "wildalert/internal/errors") {
			if c := componentFor(frame.Function); c != ComponentUnknown {
				return c
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func componentFor(function string) string {
	for _, cp := range componentPaths {
		if strings.Contains(function, cp.path) {
			return cp.component
		}
	}
	return ComponentUnknown
}

// detectCategory derives a category from the wrapped error chain, falling
// back to message keywords.
func detectCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}

	if catErr, ok := stderrors.AsType[CategorizedError](err); ok {
		return catErr.ErrorCategory()
	}
	if enhErr, ok := stderrors.AsType[*EnhancedError](err); ok && enhErr.Category != "" {
		return enhErr.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return CategoryNotFound
	case strings.Contains(msg, "permission") || strings.Contains(msg, "forbidden"):
		return CategoryPermission
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return CategoryNetwork
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "validation"):
		return CategoryValidation
	}
	return CategoryGeneric
}

// NewStd creates a plain error.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join is errors.Join from the standard library.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// CategoryOf returns the category of the first EnhancedError in err's tree,
// or CategoryGeneric when there is none.
func CategoryOf(err error) ErrorCategory {
	if ee, ok := stderrors.AsType[*EnhancedError](err); ok {
		return ee.Category
	}
	return CategoryGeneric
}

// IsCategory reports whether err carries category.
func IsCategory(err error, category ErrorCategory) bool {
	if ee, ok := stderrors.AsType[*EnhancedError](err); ok {
		return ee.Category == category
	}
	return false
}

// IsNotFound reports whether err carries CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

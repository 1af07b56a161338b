package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every built error while installed.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter forwards operational failures to Sentry. Caller-facing
// outcomes (permission, validation, not found, invalid transition) are the
// expected result of user actions and are skipped.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a reporter for the process-wide Sentry hub.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled implements TelemetryReporter.
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError captures ee once, with scrubbed message and context.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || isUserFacing(ee.Category) || !ee.markReported() {
		return
	}

	title := generateErrorTitle(ee)
	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	level := levelFor(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_title", title)
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})
}

func isUserFacing(category ErrorCategory) bool {
	switch category {
	case CategoryPermission, CategoryValidation, CategoryNotFound, CategoryInvalidTransition:
		return true
	}
	return false
}

// categoryTitles are the human-readable names used for Sentry grouping.
var categoryTitles = map[ErrorCategory]string{
	CategoryIngest:         "Ingest Error",
	CategoryMQTTConnection: "MQTT Connection Error",
	CategoryMQTTPublish:    "MQTT Publish Error",
	CategoryNetwork:        "Network Error",
	CategoryConfiguration:  "Configuration Error",
	CategorySystem:         "System Error",
}

// generateErrorTitle builds "<Component> <Category> <Operation>", dropping the
// component when the category title already starts with it.
func generateErrorTitle(ee *EnhancedError) string {
	category, ok := categoryTitles[ee.Category]
	if !ok {
		category = string(ee.Category)
	}

	var parts []string
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		if comp := titleCase(c); !strings.HasPrefix(strings.ToLower(category), strings.ToLower(comp)) {
			parts = append(parts, comp)
		}
	}
	parts = append(parts, category)

	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		for word := range strings.FieldsSeq(strings.ReplaceAll(op, "_", " ")) {
			parts = append(parts, titleCase(word))
		}
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// levelFor downgrades transient transport failures to warnings.
func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryMQTTConnection, CategoryMQTTPublish:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	telemetryReporter TelemetryReporter
	privacyScrubber   func(string) string
	reporterMu        sync.RWMutex
)

// SetTelemetryReporter installs reporter. Passing nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the installed reporter, or nil.
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return telemetryReporter
}

// SetPrivacyScrubber replaces the built-in scrubbing applied to reported
// messages and string context. Passing nil restores the built-in one.
func SetPrivacyScrubber(scrub func(string) string) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	privacyScrubber = scrub
}

func reportToTelemetry(ee *EnhancedError) {
	if reporter := GetTelemetryReporter(); reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

func scrubMessage(message string) string {
	reporterMu.RLock()
	scrub := privacyScrubber
	reporterMu.RUnlock()
	if scrub != nil {
		return scrub(message)
	}
	return basicURLScrub(message)
}

var (
	urlQueryRegex = regexp.MustCompile(`(\w+://[^?\s]+)\?\S*`)
	secretRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(password|token|secret)[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
)

// basicURLScrub redacts URL query strings and credential-looking values.
func basicURLScrub(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	for _, re := range secretRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[REDACTED]")
	}
	return scrubbed
}

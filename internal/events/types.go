// Package events provides an asynchronous event bus that decouples alert
// lifecycle changes from integration consumers such as the MQTT exporter.
package events

import (
	"time"

	"github.com/tphakala/wildalert/internal/alert"
)

// Kind names a lifecycle change.
type Kind string

const (
	KindAdmitted Kind = "admitted"
	KindVerified Kind = "verified"
	KindRejected Kind = "rejected"
)

// KindForState maps a post-transition state to its event kind.
func KindForState(s alert.State) Kind {
	switch s {
	case alert.StateVerified:
		return KindVerified
	case alert.StateRejected:
		return KindRejected
	default:
		return KindAdmitted
	}
}

// LifecycleEvent is published after the store applied a lifecycle change.
// Alert is a copy taken at publish time. Its Read field carries no meaning here.
type LifecycleEvent struct {
	Kind       Kind
	Alert      alert.Alert
	OccurredAt time.Time
}

// EventConsumer processes lifecycle events off the publishing goroutine.
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent handles one event. Errors are counted and logged, never retried.
	ProcessEvent(event LifecycleEvent) error
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}

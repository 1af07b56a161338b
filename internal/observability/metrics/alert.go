// Package metrics provides custom Prometheus metrics for the alert engine and its integrations.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingest tick outcomes used as the "outcome" label.
const (
	TickAdmitted = "admitted"
	TickSkipped  = "skipped"
	TickPaused   = "paused"
	TickFailed   = "failed"
)

// AlertMetrics contains Prometheus metrics for the alert lifecycle.
type AlertMetrics struct {
	AdmissionsTotal        *prometheus.CounterVec // admitted detections by species
	TransitionsTotal       *prometheus.CounterVec // successful transitions by target state
	OperationFailuresTotal *prometheus.CounterVec // rejected operations by operation and error category
	IngestTicksTotal       *prometheus.CounterVec // ingestor ticks by outcome
	ReadChangesTotal       *prometheus.CounterVec // read flag changes by role
	UnreadAlerts           *prometheus.GaugeVec   // unread visible alerts by role
	PendingAlerts          prometheus.Gauge
	SubscriberDropsTotal   prometheus.Counter // changes dropped because a subscriber buffer was full
	NoticesPublishedTotal  *prometheus.CounterVec
	NoticesQuietTotal      prometheus.Counter

	registry *prometheus.Registry
}

// NewAlertMetrics creates and registers AlertMetrics on registry.
func NewAlertMetrics(registry *prometheus.Registry) (*AlertMetrics, error) {
	m := &AlertMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize alert metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register alert metrics: %w", err)
	}
	return m, nil
}

func (m *AlertMetrics) initMetrics() error {
	m.AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildalert_admissions_total",
			Help: "Total number of detections admitted as pending alerts, by species",
		},
		[]string{"species"},
	)

	m.TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildalert_transitions_total",
			Help: "Total number of alert state transitions, by target state",
		},
		[]string{"state"},
	)

	m.OperationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildalert_operation_failures_total",
			Help: "Total number of failed engine operations, by operation and error category",
		},
		[]string{"operation", "category"},
	)

	m.IngestTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildalert_ingest_ticks_total",
			Help: "Total number of ingestor ticks, by outcome (admitted, skipped, paused, failed)",
		},
		[]string{"outcome"},
	)

	m.ReadChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildalert_read_changes_total",
			Help: "Total number of read flag changes, by role",
		},
		[]string{"role"},
	)

	m.UnreadAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wildalert_unread_alerts",
			Help: "Number of unread alerts visible to a role",
		},
		[]string{"role"},
	)

	m.PendingAlerts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wildalert_pending_alerts",
		Help: "Number of alerts awaiting verification",
	})

	m.SubscriberDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildalert_subscriber_drops_total",
		Help: "Total number of changes dropped because a subscriber buffer was full",
	})

	m.NoticesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildalert_notices_published_total",
			Help: "Total number of notices published, by audience",
		},
		[]string{"audience"},
	)

	m.NoticesQuietTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildalert_notices_quiet_total",
		Help: "Total number of notices stored quiet because the audience was over its flood limit",
	})

	return nil
}

func (m *AlertMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AdmissionsTotal,
		m.TransitionsTotal,
		m.OperationFailuresTotal,
		m.IngestTicksTotal,
		m.ReadChangesTotal,
		m.UnreadAlerts,
		m.PendingAlerts,
		m.SubscriberDropsTotal,
		m.NoticesPublishedTotal,
		m.NoticesQuietTotal,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *AlertMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.getCollectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *AlertMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.getCollectors() {
		c.Collect(ch)
	}
}

// RecordAdmission counts one admitted detection.
func (m *AlertMetrics) RecordAdmission(species string) {
	if m == nil {
		return
	}
	m.AdmissionsTotal.WithLabelValues(species).Inc()
}

// RecordTransition counts one successful transition into state.
func (m *AlertMetrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(state).Inc()
}

// RecordOperationFailure counts one failed operation.
func (m *AlertMetrics) RecordOperationFailure(operation, category string) {
	if m == nil {
		return
	}
	m.OperationFailuresTotal.WithLabelValues(operation, category).Inc()
}

// RecordTick counts one ingestor tick with the given outcome.
func (m *AlertMetrics) RecordTick(outcome string) {
	if m == nil {
		return
	}
	m.IngestTicksTotal.WithLabelValues(outcome).Inc()
}

// RecordReadChanges adds n read flag changes for role.
func (m *AlertMetrics) RecordReadChanges(role string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReadChangesTotal.WithLabelValues(role).Add(float64(n))
}

// SetUnread sets the unread gauge for role.
func (m *AlertMetrics) SetUnread(role string, n int) {
	if m == nil {
		return
	}
	m.UnreadAlerts.WithLabelValues(role).Set(float64(n))
}

// SetPending sets the pending gauge.
func (m *AlertMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingAlerts.Set(float64(n))
}

// RecordSubscriberDrop counts a change dropped for a slow subscriber.
func (m *AlertMetrics) RecordSubscriberDrop() {
	if m == nil {
		return
	}
	m.SubscriberDropsTotal.Inc()
}

// RecordNotice counts a published notice and whether it was raised or quiet.
func (m *AlertMetrics) RecordNotice(audience string, raised bool) {
	if m == nil {
		return
	}
	m.NoticesPublishedTotal.WithLabelValues(audience).Inc()
	if !raised {
		m.NoticesQuietTotal.Inc()
	}
}

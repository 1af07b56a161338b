package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics covers the broker connection and lifecycle exports.
// All methods are safe on a nil receiver.
type MQTTMetrics struct {
	Connected         prometheus.Gauge
	LastConnected     prometheus.Gauge
	MessagesDelivered *prometheus.CounterVec // by lifecycle kind
	Errors            *prometheus.CounterVec // by stage: resolve, connect, encode, publish, connection_lost
	PayloadBytes      prometheus.Histogram
	PublishSeconds    prometheus.Histogram
}

// NewMQTTMetrics creates the exporter metrics and registers them on reg.
func NewMQTTMetrics(reg prometheus.Registerer) (*MQTTMetrics, error) {
	const sub = "mqtt"
	m := &MQTTMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: sub, Name: "connected",
			Help: "1 while connected to the broker, 0 otherwise",
		}),
		LastConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: sub, Name: "last_connected_timestamp_seconds",
			Help: "Unix time of the most recent successful broker connection",
		}),
		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub, Name: "messages_delivered_total",
			Help: "Lifecycle messages accepted by the broker, by kind",
		}, []string{"kind"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub, Name: "errors_total",
			Help: "Exporter failures, by stage",
		}, []string{"stage"}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: sub, Name: "payload_bytes",
			Help:    "Size of published payloads",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		}),
		PublishSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: sub, Name: "publish_duration_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	if err := registerAll(reg,
		m.Connected, m.LastConnected, m.MessagesDelivered,
		m.Errors, m.PayloadBytes, m.PublishSeconds,
	); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// SetConnected records a connection state change.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if !connected {
		m.Connected.Set(0)
		return
	}
	m.Connected.Set(1)
	m.LastConnected.SetToCurrentTime()
}

func (m *MQTTMetrics) Delivered(kind string) {
	if m != nil {
		m.MessagesDelivered.WithLabelValues(kind).Inc()
	}
}

func (m *MQTTMetrics) Failed(stage string) {
	if m != nil {
		m.Errors.WithLabelValues(stage).Inc()
	}
}

// ObservePublish records one acknowledged publish.
func (m *MQTTMetrics) ObservePublish(size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PayloadBytes.Observe(float64(size))
	m.PublishSeconds.Observe(elapsed.Seconds())
}

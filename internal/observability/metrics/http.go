package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// HTTPMetrics covers the API server, its auth paths and the change stream.
// All methods are safe on a nil receiver.
type HTTPMetrics struct {
	requests    *prometheus.CounterVec   // method, route template, status
	latency     *prometheus.HistogramVec // method, route template
	auth        *prometheus.CounterVec   // auth_type, operation, status
	streams     prometheus.Gauge
	streamSends *prometheus.CounterVec // message_type
}

// NewHTTPMetrics creates the API metrics and registers them on reg.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	const sub = "http"
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub, Name: "requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: sub, Name: "request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub, Name: "auth_operations_total",
			Help: "Login, logout and token validation attempts",
		}, []string{"auth_type", "operation", "status"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: sub, Name: "sse_active_connections",
			Help: "Open change streams",
		}),
		streamSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub, Name: "sse_messages_sent_total",
			Help: "Frames written to change streams, by type",
		}, []string{"message_type"}),
	}

	if err := registerAll(reg, m.requests, m.latency, m.auth, m.streams, m.streamSends); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

// RecordHTTPRequest counts a finished request. path must be the route
// template, never the raw URL, to bound label cardinality.
func (m *HTTPMetrics) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.latency.WithLabelValues(method, path).Observe(seconds)
}

func (m *HTTPMetrics) RecordAuthOperation(authType, operation, status string) {
	if m != nil {
		m.auth.WithLabelValues(authType, operation, status).Inc()
	}
}

func (m *HTTPMetrics) SSEConnectionStarted() {
	if m != nil {
		m.streams.Inc()
	}
}

func (m *HTTPMetrics) SSEConnectionClosed() {
	if m != nil {
		m.streams.Dec()
	}
}

func (m *HTTPMetrics) RecordSSEMessageSent(messageType string) {
	if m != nil {
		m.streamSends.WithLabelValues(messageType).Inc()
	}
}

// GetActiveSSEConnections reads the stream gauge back.
func (m *HTTPMetrics) GetActiveSSEConnections() float64 {
	if m == nil {
		return 0
	}
	var out dto.Metric
	if err := m.streams.Write(&out); err != nil {
		return 0
	}
	return out.GetGauge().GetValue()
}

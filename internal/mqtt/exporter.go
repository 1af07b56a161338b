package mqtt

import (
	"context"
	"encoding/json"

	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/events"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/observability/metrics"
)

// Exporter publishes verification decisions. It is an events.EventConsumer
// and runs on the event bus workers.
type Exporter struct {
	client  Client
	cfg     Config
	metrics *metrics.MQTTMetrics
	log     logger.Logger
}

var _ events.EventConsumer = (*Exporter)(nil)

// NewExporter wraps client. The client must be connected separately.
func NewExporter(client Client, cfg Config, m *metrics.MQTTMetrics, log logger.Logger) *Exporter {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Exporter{client: client, cfg: cfg, metrics: m, log: log}
}

// Name implements events.EventConsumer.
func (e *Exporter) Name() string {
	return "mqtt-exporter"
}

// ProcessEvent publishes verified and rejected events. Admissions are not
// exported.
func (e *Exporter) ProcessEvent(ev events.LifecycleEvent) error {
	var (
		payload any
		suffix  string
	)
	switch ev.Kind {
	case events.KindVerified:
		payload = NewVerifiedPayload(&ev.Alert)
		suffix = "verified"
	case events.KindRejected:
		payload = RejectedPayload{ID: ev.Alert.ID}
		suffix = "rejected"
	default:
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.metrics.Failed("encode")
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("alert_id", ev.Alert.ID).
			Context("operation", "encode_payload").
			Build()
	}

	topic := topicFor(e.cfg.Topic, suffix)
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
	defer cancel()

	if err := e.client.Publish(ctx, topic, data); err != nil {
		e.log.Warn("alert export failed",
			logger.Uint64("alert_id", ev.Alert.ID),
			logger.String("topic", topic),
			logger.Error(err))
		return err
	}

	e.metrics.Delivered(suffix)
	e.log.Debug("alert exported",
		logger.Uint64("alert_id", ev.Alert.ID),
		logger.String("topic", topic),
		logger.Int("bytes", len(data)))
	return nil
}

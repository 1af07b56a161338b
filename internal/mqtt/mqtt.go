// Package mqtt exports alert verification decisions to an MQTT broker.
//
// Verified alerts go to <topic>/verified with the public payload; rejections
// go to <topic>/rejected carrying only the alert ID.
package mqtt

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/tphakala/wildalert/internal/errors"
)

// Client is the broker connection used by the Exporter.
type Client interface {
	Connect(ctx context.Context) error
	// Publish fails immediately when not connected.
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Config describes one broker connection.
type Config struct {
	Broker   string // scheme://host:port
	ClientID string
	Username string
	Password string
	Topic    string // base topic, no wildcards
	Retain   bool
	QoS      byte

	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig has everything but the broker filled in.
func DefaultConfig() Config {
	return Config{
		ClientID:          "wildalert",
		Topic:             "wildalert/alerts",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// Validate reports every problem with c as configuration errors.
func (c *Config) Validate() error {
	var problems []string

	switch u, err := url.Parse(c.Broker); {
	case c.Broker == "":
		problems = append(problems, "mqtt broker is required")
	case err != nil || u.Scheme == "" || u.Host == "":
		problems = append(problems, "invalid mqtt broker URL "+strings.TrimSpace(c.Broker))
	}

	topic := strings.TrimSpace(c.Topic)
	if topic == "" {
		problems = append(problems, "mqtt topic is required")
	} else if strings.ContainsAny(topic, "+#") {
		problems = append(problems, "mqtt topic "+topic+" must not contain wildcards")
	}

	if c.QoS > 2 {
		problems = append(problems, "mqtt qos must be 0, 1 or 2")
	}

	errs := make([]error, 0, len(problems))
	for _, p := range problems {
		errs = append(errs, errors.Newf("%s", p).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build())
	}
	return errors.Join(errs...)
}

func topicFor(base, suffix string) string {
	return strings.TrimSuffix(base, "/") + "/" + suffix
}

package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/observability/metrics"
	"github.com/tphakala/wildalert/internal/privacy"
)

// pahoClient is the production Client.
type pahoClient struct {
	cfg     Config
	broker  string // sanitized, safe for logs
	metrics *metrics.MQTTMetrics
	log     logger.Logger

	mu          sync.Mutex
	conn        paho.Client
	lastAttempt time.Time
}

// NewClient validates cfg and returns an unconnected client.
func NewClient(cfg Config, m *metrics.MQTTMetrics, log logger.Logger) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &pahoClient{
		cfg:     cfg,
		broker:  privacy.SanitizeURL(cfg.Broker),
		metrics: m,
		log:     log,
	}, nil
}

// fail counts a failure at stage and wraps it for the caller.
func (c *pahoClient) fail(stage string, category errors.ErrorCategory, err error) *errors.ErrorBuilder {
	c.metrics.Failed(stage)
	return errors.New(err).
		Component("mqtt").
		Category(category).
		Context("broker", c.broker).
		Context("stage", stage)
}

// Connect dials the broker once; paho reconnects on its own afterwards.
// Attempts closer together than ReconnectCooldown are refused.
func (c *pahoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if wait := c.cfg.ReconnectCooldown - now.Sub(c.lastAttempt); wait > 0 {
		return errors.Newf("reconnect cooldown, retry in %v", wait.Round(time.Millisecond)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastAttempt = now

	if err := c.resolve(ctx); err != nil {
		return err
	}

	c.conn = paho.NewClient(c.options())
	token := c.conn.Connect()
	if !waitToken(ctx, token, c.cfg.ConnectTimeout) {
		return c.fail("connect", errors.CategoryMQTTConnection, errors.NewStd("connect timed out")).Build()
	}
	if err := token.Error(); err != nil {
		return c.fail("connect", errors.CategoryMQTTConnection, privacy.WrapError(err)).Build()
	}

	c.metrics.SetConnected(true)
	return nil
}

// resolve fails fast on an unknown broker host instead of waiting for the
// connect timeout.
func (c *pahoClient) resolve(ctx context.Context) error {
	u, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return errors.New(err).Component("mqtt").Category(errors.CategoryConfiguration).Build()
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return c.fail("resolve", errors.CategoryNetwork, err).Context("host", host).Build()
	}
	return nil
}

func (c *pahoClient) options() *paho.ClientOptions {
	return paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetOnConnectHandler(func(paho.Client) {
			c.log.Info("connected to broker", logger.String("broker", c.broker))
			c.metrics.SetConnected(true)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn("connection to broker lost", logger.String("broker", c.broker), logger.Error(err))
			c.metrics.SetConnected(false)
			c.metrics.Failed("connection_lost")
		})
}

// Publish sends payload and waits for the broker acknowledgement.
func (c *pahoClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return c.fail("publish", errors.CategoryMQTTPublish, errors.NewStd("not connected to MQTT broker")).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	token := c.conn.Publish(topic, c.cfg.QoS, c.cfg.Retain, payload)
	if !waitToken(ctx, token, c.cfg.PublishTimeout) {
		c.log.Warn("publish timed out", logger.String("topic", topic))
		return c.fail("publish", errors.CategoryMQTTPublish, errors.NewStd("publish timed out")).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return c.fail("publish", errors.CategoryMQTTPublish, err).Context("topic", topic).Build()
	}

	c.metrics.ObservePublish(len(payload), time.Since(start))
	return nil
}

func (c *pahoClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *pahoClient) connectedLocked() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Disconnect is a no-op when not connected.
func (c *pahoClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return
	}
	c.conn.Disconnect(uint(c.cfg.DisconnectTimeout.Milliseconds()))
	c.metrics.SetConnected(false)
	c.log.Info("disconnected from broker", logger.String("broker", c.broker))
}

// waitToken reports whether token completed before timeout and ctx.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-token.Done():
		return true
	case <-t.C:
	case <-ctx.Done():
	}
	return false
}

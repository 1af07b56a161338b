package app

import (
	"strings"
	"time"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/api/auth"
	"github.com/tphakala/wildalert/internal/conf"
	"github.com/tphakala/wildalert/internal/events"
	"github.com/tphakala/wildalert/internal/ingest"
	"github.com/tphakala/wildalert/internal/mqtt"
	"github.com/tphakala/wildalert/internal/notice"
	"github.com/tphakala/wildalert/internal/telemetry"
)

// IngestConfig maps settings onto the ingestor configuration.
func IngestConfig(s *conf.Settings) ingest.Config {
	cfg := ingest.DefaultConfig()
	in := s.Ingest

	cfg.Interval = in.Interval
	cfg.Probability = in.Probability
	cfg.Species = make([]alert.Species, 0, len(in.Species))
	for _, sp := range in.Species {
		cfg.Species = append(cfg.Species, alert.Species(strings.TrimSpace(sp)))
	}
	cfg.Cameras = append([]string(nil), in.Cameras...)
	cfg.Base = alert.Coordinates{Lat: in.Latitude, Lng: in.Longitude}
	cfg.Radius = in.Radius
	cfg.Location = in.Location
	cfg.FramePool = append([]string(nil), in.FramePool...)
	cfg.MinConfidence = in.MinConfidence
	cfg.MaxConfidence = in.MaxConfidence
	return cfg
}

// MQTTConfig maps settings onto the exporter client configuration.
func MQTTConfig(s *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	m := s.MQTT

	cfg.Broker = m.Broker
	if m.ClientID != "" {
		cfg.ClientID = m.ClientID
	}
	cfg.Username = m.Username
	cfg.Password = m.Password
	if m.Topic != "" {
		cfg.Topic = m.Topic
	}
	cfg.Retain = m.Retain
	cfg.QoS = byte(m.QoS) //nolint:gosec // validated to 0..2
	return cfg
}

// NoticeConfig maps settings onto the notice center configuration.
func NoticeConfig(s *conf.Settings) notice.Config {
	return notice.Config{
		TTL:           s.Notice.TTL,
		RatePerSecond: s.Notice.RatePerSecond,
		Burst:         s.Notice.Burst,
	}
}

// EventsConfig maps settings onto the event bus configuration.
func EventsConfig(s *conf.Settings) *events.Config {
	return &events.Config{
		BufferSize: s.Events.BufferSize,
		Workers:    s.Events.Workers,
	}
}

// AuthConfig maps settings onto the auth service configuration.
func AuthConfig(s *conf.Settings) auth.Config {
	return auth.Config{
		SessionSecret: s.Security.SessionSecret,
		SessionMaxAge: s.Security.SessionMaxAge,
		SecureCookie:  s.Security.SecureCookie,
		JWTSecret:     s.Security.JWTSecret,
	}
}

// SentryConfig maps settings onto the telemetry configuration.
func SentryConfig(s *conf.Settings) telemetry.Config {
	return telemetry.Config{
		Enabled:     s.Sentry.Enabled,
		DSN:         s.Sentry.DSN,
		Environment: s.Sentry.Environment,
		SampleRate:  s.Sentry.SampleRate,
		Debug:       s.Sentry.Debug,
	}
}

// shutdownTimeout bounds each component's shutdown.
func shutdownTimeout(s *conf.Settings) time.Duration {
	if s.WebServer.ShutdownTimeout > 0 {
		return s.WebServer.ShutdownTimeout
	}
	return 10 * time.Second
}

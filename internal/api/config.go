// Package api provides the HTTP server infrastructure for wildalert.
// The JSON endpoints live in the v1 subpackage.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tphakala/wildalert/internal/api/middleware"
	"github.com/tphakala/wildalert/internal/conf"
	"github.com/tphakala/wildalert/internal/errors"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSSEHeartbeat    = 30 * time.Second
	DefaultClientIdleTTL   = 30 * time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string // empty binds all interfaces
	Port int

	AllowedOrigins []string // CORS allowed origins, empty disables CORS

	// There is no write timeout: streams stay open and set per-write deadlines.
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // e.g. "64K"

	SSEHeartbeat  time.Duration
	ClientIdleTTL time.Duration

	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		ReadTimeout:     DefaultReadTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       middleware.DefaultBodyLimit,
		SSEHeartbeat:    DefaultSSEHeartbeat,
		ClientIdleTTL:   DefaultClientIdleTTL,
		MetricsEnabled:  true,
	}
}

// ConfigFromSettings builds a Config from loaded settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}

	ws := settings.WebServer
	cfg.Host = ws.Host
	cfg.Port = ws.Port
	cfg.AllowedOrigins = ws.AllowedOrigins
	cfg.MetricsEnabled = ws.Metrics
	if ws.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = ws.ShutdownTimeout
	}
	if ws.SSEHeartbeat > 0 {
		cfg.SSEHeartbeat = ws.SSEHeartbeat
	}
	if settings.Security.ClientIdleTTL > 0 {
		cfg.ClientIdleTTL = settings.Security.ClientIdleTTL
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf("invalid port %d", c.Port).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.ShutdownTimeout <= 0 {
		return errors.Newf("shutdown timeout must be positive, got %s", c.ShutdownTimeout).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.SSEHeartbeat <= 0 {
		return errors.Newf("sse heartbeat must be positive, got %s", c.SSEHeartbeat).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Address returns the full address string for the server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, strconv.Itoa(c.Port))
}

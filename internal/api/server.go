package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/wildalert/internal/api/auth"
	mw "github.com/tphakala/wildalert/internal/api/middleware"
	v1 "github.com/tphakala/wildalert/internal/api/v1"
	"github.com/tphakala/wildalert/internal/engine"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/observability"
	"github.com/tphakala/wildalert/internal/observability/metrics"
)

// Server is the HTTP server for wildalert.
// It owns the Echo instance, middleware and the v1 controller.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	engine  *engine.Engine
	auth    *auth.Service
	metrics *observability.Metrics
	version string

	apiController *v1.Controller

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a server serving eng. Call Run to listen.
func New(config *Config, eng *engine.Engine, authService *auth.Service, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if eng == nil || authService == nil {
		return nil, fmt.Errorf("server requires an engine and an auth service")
	}

	s := &Server{
		config:    config,
		engine:    eng,
		auth:      authService,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewDiscardLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Logger = logger.NewEchoAdapter(s.log.Module("echo"))
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("metrics", s.metricsEnabled()))
	return s, nil
}

func (s *Server) httpMetrics() *metrics.HTTPMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.HTTP
}

func (s *Server) metricsEnabled() bool {
	return s.config.MetricsEnabled && s.metrics != nil
}

// setupMiddleware configures the middleware stack.
// Order: recover, request ID, request log, metrics, CORS, body limit, headers.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestID())
	s.echo.Use(mw.NewRequestLogger(s.log.Module("http")))
	s.echo.Use(mw.NewMetrics(s.httpMetrics()))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	if cors := mw.NewCORS(securityConfig); cors != nil {
		s.echo.Use(cors)
	}
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
	s.echo.Use(mw.NoStore(v1.Prefix))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.metricsEnabled() {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.apiController = v1.New(s.echo, s.engine, s.auth,
		v1.WithLogger(s.log.Module("v1")),
		v1.WithMetrics(s.httpMetrics()),
		v1.WithHeartbeat(s.config.SSEHeartbeat),
		v1.WithClientTTL(s.config.ClientIdleTTL))
}

// healthResponse is the unauthenticated liveness body.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Timestamp     string  `json:"timestamp"`
}

func (s *Server) healthCheck(c echo.Context) error {
	up := time.Since(s.startTime)
	return c.JSON(http.StatusOK, healthResponse{
		Status:        "healthy",
		Version:       s.version,
		Uptime:        up.Round(time.Second).String(),
		UptimeSeconds: up.Seconds(),
		Timestamp:     time.Now().Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled or the listener fails. Cancellation
// triggers a graceful Shutdown.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Address()
	listenErr := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", addr))
		err := s.echo.Start(addr)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown closes open streams, then stops the listener within the
// configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if s.apiController != nil {
		s.apiController.Shutdown()
	}

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.log.Info("server shutdown complete")
	return nil
}

// APIController returns the v1 controller.
func (s *Server) APIController() *v1.Controller {
	return s.apiController
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Package api implements the v1 REST and SSE surface over the alert engine.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/api/auth"
	"github.com/tphakala/wildalert/internal/engine"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/observability/metrics"
)

// Route prefix for every v1 endpoint.
const Prefix = "/api/v1"

const (
	defaultHeartbeat = 30 * time.Second
	defaultClientTTL = 30 * time.Minute
)

// Controller manages the v1 routes and their handlers.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	engine    *engine.Engine
	auth      *auth.Service
	clients   *ClientRegistry
	metrics   *metrics.HTTPMetrics
	log       logger.Logger
	heartbeat time.Duration
	clientTTL time.Duration

	// ctx is cancelled by Shutdown so open streams return. streamMu orders
	// stream registration against Shutdown so wg.Add never races wg.Wait.
	ctx      context.Context
	cancel   context.CancelFunc
	streamMu sync.Mutex
	wg       sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics records auth and SSE metrics.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithHeartbeat sets the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithClientTTL sets how long an idle client's focus survives.
func WithClientTTL(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.clientTTL = d
		}
	}
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, eng *engine.Engine, authService *auth.Service, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Echo:      e,
		engine:    eng,
		auth:      authService,
		heartbeat: defaultHeartbeat,
		clientTTL: defaultClientTTL,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDiscardLogger()
	}
	c.clients = NewClientRegistry(eng, c.clientTTL)

	c.Group = e.Group(Prefix, auth.NewMiddleware(authService, c.metrics, c.log).Authenticate)
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.Group.GET("/session", c.WhoAmI)
	c.Group.POST("/session/login", c.Login)
	c.Group.POST("/session/logout", c.Logout)

	c.Group.GET("/alerts", c.ListAlerts)
	c.Group.GET("/alerts/pending", c.ListPending)
	c.Group.GET("/alerts/unread-count", c.UnreadCount)
	c.Group.POST("/alerts/read-all", c.MarkAllRead)
	c.Group.GET("/alerts/:id", c.GetAlert)
	c.Group.POST("/alerts/:id/verify", c.VerifyAlert)
	c.Group.POST("/alerts/:id/reject", c.RejectAlert)
	c.Group.POST("/alerts/:id/read", c.MarkRead)
	c.Group.DELETE("/alerts/:id/read", c.MarkUnread)

	c.Group.GET("/focus", c.GetFocus)
	c.Group.PUT("/focus/:id", c.SetFocus)
	c.Group.DELETE("/focus", c.ClearFocus)

	c.Group.GET("/notices", c.ListNotices)
	c.Group.GET("/stream", c.StreamChanges, streamRateLimiter())
}

// Shutdown ends open streams and waits for them to return. Streams opened
// afterwards are refused.
func (c *Controller) Shutdown() {
	c.streamMu.Lock()
	c.cancel()
	c.streamMu.Unlock()
	c.wg.Wait()
}

// beginStream registers a stream unless Shutdown has started. A true result
// must be paired with c.wg.Done.
func (c *Controller) beginStream() bool {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	c.wg.Add(1)
	return true
}

// Clients exposes the registry, mainly for tests.
func (c *Controller) Clients() *ClientRegistry {
	return c.clients
}

// HealthCheck reports liveness and the current store size.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"alerts":      c.engine.Store().Len(),
		"subscribers": c.engine.SubscriberCount(),
		"time":        c.engine.Now(),
	})
}

// client returns the engine client for the request identity.
func (c *Controller) client(ctx echo.Context) (*engine.Client, auth.Identity) {
	id := auth.IdentityFrom(ctx)
	return c.clients.For(id), id
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// StatusFor maps engine failures to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case engine.IsUnauthenticated(err):
		return http.StatusUnauthorized
	case errors.Is(err, alert.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alert.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, alert.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes err as an ErrorResponse with the status StatusFor picks.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	return c.respondError(ctx, err, message, StatusFor(err))
}

func (c *Controller) respondError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Debug("API request refused", fields...)
	}

	return ctx.JSON(code, resp)
}

// parseID reads the :id path parameter.
func parseID(ctx echo.Context) (uint64, error) {
	raw := ctx.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Newf("invalid alert id %q", raw).
			Component("api").
			Category(errors.CategoryValidation).
			Context("param", "id").
			Build()
	}
	return id, nil
}

// badRequest responds 400 for malformed input that never reached the engine.
func (c *Controller) badRequest(ctx echo.Context, err error, message string) error {
	return c.respondError(ctx, err, message, http.StatusBadRequest)
}

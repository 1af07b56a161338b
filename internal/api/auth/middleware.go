package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/observability/metrics"
)

// Context keys for authentication values stored in echo.Context.
// These keys are prefixed with "auth:" to prevent collisions with other packages.
const (
	// CtxKeyIdentity holds the request Identity.
	CtxKeyIdentity = "auth:identity"
	// CtxKeyAuthMethod indicates the authentication method used.
	CtxKeyAuthMethod = "auth:authMethod"
)

// Middleware resolves the caller identity for every request. Anonymous
// requests pass through; the engine decides what they may do.
type Middleware struct {
	AuthService *Service
	metrics     *metrics.HTTPMetrics
	log         logger.Logger
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service *Service, m *metrics.HTTPMetrics, log logger.Logger) *Middleware {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Middleware{AuthService: service, metrics: m, log: log}
}

// Authenticate stores the Identity in the context. Only a bad bearer token
// stops the request.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.AuthService == nil {
			m.log.Error("authentication middleware called with nil AuthService",
				logger.String("path", c.Request().URL.Path))
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error":   "Internal Server Error",
				"message": "authentication service not available",
				"code":    http.StatusInternalServerError,
			})
		}

		id, err := m.AuthService.Identify(c)
		if err != nil {
			m.metrics.RecordAuthOperation(AuthMethodToken.String(), "validate", "failure")
			m.log.Debug("request rejected",
				logger.String("path", c.Request().URL.Path),
				logger.String("ip", c.RealIP()),
				logger.Error(err))
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"error":   http.StatusText(http.StatusUnauthorized),
				"message": err.Error(),
				"code":    http.StatusUnauthorized,
			})
		}
		if id.Method == AuthMethodToken {
			m.metrics.RecordAuthOperation(AuthMethodToken.String(), "validate", "success")
		}

		c.Set(CtxKeyIdentity, id)
		c.Set(CtxKeyAuthMethod, id.Method)
		return next(c)
	}
}

// IdentityFrom returns the identity stored by Authenticate, or an anonymous one.
func IdentityFrom(c echo.Context) Identity {
	if id, ok := c.Get(CtxKeyIdentity).(Identity); ok {
		return id
	}
	return Identity{}
}

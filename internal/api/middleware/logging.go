// Package middleware provides HTTP middleware components for the wildalert API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/wildalert/internal/logger"
)

// NewRequestID assigns each request a UUID X-Request-Id, honouring one sent
// by a proxy, and stores it as the logger trace ID on the request context.
func NewRequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	})
}

// NewRequestLogger logs one line per request. 5xx responses log at warn;
// the rest at debug, since stream heartbeats and polling are constant.
func NewRequestLogger(log logger.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("path", v.URIPath),
				logger.String("route", v.RoutePath),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			l := log.WithContext(c.Request().Context())
			if v.Status >= http.StatusInternalServerError {
				l.Warn("request failed", fields...)
			} else {
				l.Debug("request", fields...)
			}
			return nil
		},
	})
}

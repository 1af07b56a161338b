package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/logger"
)

const (
	sseWriteTimeout = 10 * time.Second

	// stream connection attempts allowed per IP per minute
	sseConnectRate = 10
)

// streamRateLimiter limits reconnect storms from a single address.
func streamRateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      sseConnectRate,
				ExpiresIn: time.Minute,
			},
		),
		IdentifierExtractor: middleware.DefaultRateLimiterConfig.IdentifierExtractor,
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, NewErrorResponse(err, "rate limiter failed", http.StatusForbidden))
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests,
				NewErrorResponse(err, "too many stream connection attempts", http.StatusTooManyRequests))
		},
	})
}

// StreamChanges streams alert changes for the caller's role as server-sent
// events. Changes are filtered by role at subscribe time; a login under a
// different role needs a new stream.
func (c *Controller) StreamChanges(ctx echo.Context) error {
	client, id := c.client(ctx)
	role := client.Role()
	if !role.Valid() {
		return c.respondError(ctx, errors.NewStd("not authenticated"),
			"login required to stream alerts", http.StatusUnauthorized)
	}

	if !c.beginStream() {
		return c.respondError(ctx, c.ctx.Err(), "server is shutting down", http.StatusServiceUnavailable)
	}
	defer c.wg.Done()

	changes, subCtx := client.Subscribe()
	defer client.Unsubscribe(changes)

	ctx.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	ctx.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	ctx.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	ctx.Response().Header().Set("X-Accel-Buffering", "no")
	ctx.Response().WriteHeader(http.StatusOK)

	c.metrics.SSEConnectionStarted()
	defer c.metrics.SSEConnectionClosed()

	log := c.log.With(
		logger.String("role", role.String()),
		logger.String("method", id.Method.String()),
		logger.String("ip", ctx.RealIP()))
	log.Info("SSE client connected")
	defer log.Info("SSE client disconnected")

	if err := c.sendSSEMessage(ctx, "connected", map[string]any{
		"role":    role.String(),
		"message": "connected to alert stream",
	}); err != nil {
		return nil
	}

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ch := <-changes:
			if err := c.sendSSEMessage(ctx, "change", newChangeResponse(&ch, role)); err != nil {
				log.Debug("SSE change write failed, client likely disconnected", logger.Error(err))
				return nil
			}

		case <-ticker.C:
			if err := c.sendSSEMessage(ctx, "heartbeat", map[string]any{
				"timestamp": c.engine.Now().Unix(),
			}); err != nil {
				log.Debug("SSE heartbeat failed, client likely disconnected", logger.Error(err))
				return nil
			}

		case <-ctx.Request().Context().Done():
			return nil
		case <-subCtx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		}
	}
}

// sendSSEMessage writes one event and flushes it.
func (c *Controller) sendSSEMessage(ctx echo.Context, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}

	rc := http.NewResponseController(ctx.Response().Writer)
	// not every writer supports deadlines; recorders in tests do not
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))

	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	ctx.Response().Flush()

	c.metrics.RecordSSEMessageSent(event)
	return nil
}

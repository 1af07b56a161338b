package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListNotices returns the live notices for the caller's role. Anonymous
// callers get an empty list.
func (c *Controller) ListNotices(ctx echo.Context) error {
	client, _ := c.client(ctx)
	return ctx.JSON(http.StatusOK, map[string]any{
		"notices": client.Notices(),
	})
}

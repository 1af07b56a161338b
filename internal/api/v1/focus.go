package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetFocus returns the caller's focused alert, or 204 when nothing is focused.
func (c *Controller) GetFocus(ctx echo.Context) error {
	client, _ := c.client(ctx)
	a, ok := client.Focused()
	if !ok {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, newAlertResponse(&a, client.Role()))
}

// SetFocus selects an alert for every screen of this session.
func (c *Controller) SetFocus(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.badRequest(ctx, err, "invalid alert id")
	}
	client, _ := c.client(ctx)
	a, err := client.FocusAlert(id)
	if err != nil {
		return c.HandleError(ctx, err, "failed to focus alert")
	}
	return ctx.JSON(http.StatusOK, newAlertResponse(&a, client.Role()))
}

// ClearFocus drops the selection.
func (c *Controller) ClearFocus(ctx echo.Context) error {
	client, _ := c.client(ctx)
	client.ClearFocus()
	return ctx.NoContent(http.StatusNoContent)
}

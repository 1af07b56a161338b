package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/session"
)

// maxPageSize caps ?limit.
const maxPageSize = 500

// targetRole reads ?role, defaulting to the caller's role.
func targetRole(ctx echo.Context, caller session.Role) (session.Role, error) {
	raw := ctx.QueryParam("role")
	if raw == "" {
		return caller, nil
	}
	role, ok := session.ParseRole(raw)
	if !ok {
		return session.RoleNone, errors.Newf("unknown role %q", raw).
			Component("api").
			Category(errors.CategoryValidation).
			Context("param", "role").
			Build()
	}
	return role, nil
}

// parseQueryOptions reads camera, state, limit and offset. state accepts a
// comma separated list and may be repeated.
func parseQueryOptions(ctx echo.Context) (*alert.QueryOptions, error) {
	opts := &alert.QueryOptions{Camera: strings.TrimSpace(ctx.QueryParam("camera"))}

	for _, raw := range ctx.QueryParams()["state"] {
		for part := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, ok := alert.ParseState(part)
			if !ok {
				return nil, invalidParam("state", part)
			}
			opts.States = append(opts.States, st)
		}
	}

	var err error
	if opts.Limit, err = intParam(ctx, "limit", maxPageSize); err != nil {
		return nil, err
	}
	if opts.Offset, err = intParam(ctx, "offset", -1); err != nil {
		return nil, err
	}
	return opts, nil
}

// intParam parses a non-negative integer query value; max < 0 means unbounded.
func intParam(ctx echo.Context, name string, maxValue int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 || (maxValue >= 0 && v > maxValue) {
		return 0, invalidParam(name, raw)
	}
	return v, nil
}

func invalidParam(name, value string) error {
	return errors.Newf("invalid %s %q", name, value).
		Component("api").
		Category(errors.CategoryValidation).
		Context("param", name).
		Build()
}

// ListAlerts returns the alerts visible to ?role (default: the caller's),
// newest first.
func (c *Controller) ListAlerts(ctx echo.Context) error {
	client, _ := c.client(ctx)
	caller := client.Role()

	role, err := targetRole(ctx, caller)
	if err != nil {
		return c.HandleError(ctx, err, "invalid role")
	}
	opts, err := parseQueryOptions(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid query")
	}

	alerts, err := client.VisibleAlerts(role, opts)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list alerts")
	}
	return ctx.JSON(http.StatusOK, AlertListResponse{
		Role:   role.String(),
		Count:  len(alerts),
		Alerts: newAlertList(alerts, caller),
	})
}

// ListPending returns the operator's verification queue.
func (c *Controller) ListPending(ctx echo.Context) error {
	client, _ := c.client(ctx)
	alerts, err := client.PendingAlerts()
	if err != nil {
		return c.HandleError(ctx, err, "failed to list pending alerts")
	}
	return ctx.JSON(http.StatusOK, AlertListResponse{
		Role:   client.Role().String(),
		Count:  len(alerts),
		Alerts: newAlertList(alerts, client.Role()),
	})
}

// GetAlert returns one alert if the caller may see it.
func (c *Controller) GetAlert(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.badRequest(ctx, err, "invalid alert id")
	}
	client, _ := c.client(ctx)
	caller := client.Role()

	alerts, err := client.VisibleAlerts(caller, nil)
	if err != nil {
		return c.HandleError(ctx, err, "failed to get alert")
	}
	for i := range alerts {
		if alerts[i].ID == id {
			return ctx.JSON(http.StatusOK, newAlertResponse(&alerts[i], caller))
		}
	}
	return c.HandleError(ctx, errors.Newf("alert %d not found", id).
		Component("api").
		Category(errors.CategoryNotFound).
		Context("alert_id", id).
		Build(), "alert not found")
}

// VerifyAlert confirms a pending alert with the operator's message.
func (c *Controller) VerifyAlert(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.badRequest(ctx, err, "invalid alert id")
	}
	var req VerifyRequest
	if err := ctx.Bind(&req); err != nil {
		return c.badRequest(ctx, err, "invalid verify request")
	}

	client, _ := c.client(ctx)
	a, err := client.Verify(id, req.Message)
	if err != nil {
		return c.HandleError(ctx, err, "failed to verify alert")
	}
	return ctx.JSON(http.StatusOK, newAlertResponse(&a, client.Role()))
}

// RejectAlert dismisses a pending alert.
func (c *Controller) RejectAlert(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.badRequest(ctx, err, "invalid alert id")
	}
	client, _ := c.client(ctx)
	a, err := client.Reject(id)
	if err != nil {
		return c.HandleError(ctx, err, "failed to reject alert")
	}
	return ctx.JSON(http.StatusOK, newAlertResponse(&a, client.Role()))
}

// MarkRead sets the caller's read flag on an alert.
func (c *Controller) MarkRead(ctx echo.Context) error {
	return c.setRead(ctx, true)
}

// MarkUnread clears the caller's read flag on an alert.
func (c *Controller) MarkUnread(ctx echo.Context) error {
	return c.setRead(ctx, false)
}

func (c *Controller) setRead(ctx echo.Context, read bool) error {
	id, err := parseID(ctx)
	if err != nil {
		return c.badRequest(ctx, err, "invalid alert id")
	}
	client, _ := c.client(ctx)

	var a alert.Alert
	if read {
		a, err = client.MarkRead(id)
	} else {
		a, err = client.MarkUnread(id)
	}
	if err != nil {
		return c.HandleError(ctx, err, "failed to update read state")
	}
	return ctx.JSON(http.StatusOK, newAlertResponse(&a, client.Role()))
}

// MarkAllRead marks every alert visible to the caller's role as read.
func (c *Controller) MarkAllRead(ctx echo.Context) error {
	client, _ := c.client(ctx)

	var req ReadAllRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&req); err != nil {
			return c.badRequest(ctx, err, "invalid read-all request")
		}
	}
	role := client.Role()
	if req.Role != "" {
		var ok bool
		if role, ok = session.ParseRole(req.Role); !ok {
			return c.HandleError(ctx, invalidParam("role", req.Role), "invalid role")
		}
	}

	changed, err := client.MarkAllRead(role)
	if err != nil {
		return c.HandleError(ctx, err, "failed to mark alerts read")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"role":    role.String(),
		"changed": changed,
	})
}

// UnreadCount returns the unread badge for ?role (default: the caller's).
func (c *Controller) UnreadCount(ctx echo.Context) error {
	client, _ := c.client(ctx)
	role, err := targetRole(ctx, client.Role())
	if err != nil {
		return c.HandleError(ctx, err, "invalid role")
	}
	count, err := client.UnreadCount(role)
	if err != nil {
		return c.HandleError(ctx, err, "failed to count unread alerts")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Role: role.String(), Count: count})
}

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/wildalert/internal/api/auth"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/session"
)

// WhoAmI reports the caller's role and how it was established.
func (c *Controller) WhoAmI(ctx echo.Context) error {
	id := auth.IdentityFrom(ctx)
	return ctx.JSON(http.StatusOK, SessionResponse{
		Role:          id.Role.String(),
		Authenticated: id.Authenticated(),
		Method:        id.Method.String(),
	})
}

// Login starts a browser session for the requested role. Role selection is
// open: this deployment trusts its network, as the reserve console did.
func (c *Controller) Login(ctx echo.Context) error {
	var req LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return c.badRequest(ctx, err, "invalid login request")
	}
	role, ok := session.ParseRole(req.Role)
	if !ok {
		err := errors.Newf("unknown role %q", req.Role).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
		c.metrics.RecordAuthOperation(auth.AuthMethodBrowserSession.String(), "login", "failure")
		return c.HandleError(ctx, err, "role must be operator or recipient")
	}

	// the previous identity's focus belongs to the old session
	c.clients.Forget(auth.IdentityFrom(ctx))

	id, err := c.auth.Login(ctx, role)
	if err != nil {
		c.metrics.RecordAuthOperation(auth.AuthMethodBrowserSession.String(), "login", "failure")
		return c.HandleError(ctx, err, "failed to start session")
	}
	c.metrics.RecordAuthOperation(auth.AuthMethodBrowserSession.String(), "login", "success")

	return ctx.JSON(http.StatusOK, SessionResponse{
		Role:          id.Role.String(),
		Authenticated: true,
		Method:        id.Method.String(),
	})
}

// Logout ends the browser session.
func (c *Controller) Logout(ctx echo.Context) error {
	id := auth.IdentityFrom(ctx)
	c.clients.Forget(id)

	if err := c.auth.Logout(ctx); err != nil {
		c.metrics.RecordAuthOperation(auth.AuthMethodBrowserSession.String(), "logout", "failure")
		return c.HandleError(ctx, err, "failed to end session")
	}
	c.metrics.RecordAuthOperation(auth.AuthMethodBrowserSession.String(), "logout", "success")
	return ctx.NoContent(http.StatusNoContent)
}

package engine

import (
	"context"
	"sync"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/events"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/notice"
	"github.com/tphakala/wildalert/internal/session"
)

// Client is the engine as seen by one caller. The session is consulted on
// every call, so a provider whose role changes takes effect immediately.
type Client struct {
	engine  *Engine
	session session.Provider

	focusMu  sync.Mutex
	focusID  uint64
	hasFocus bool
}

// Role returns the caller's current role, or RoleNone when unauthenticated.
func (c *Client) Role() session.Role {
	if !c.session.IsAuthenticated() {
		return session.RoleNone
	}
	return c.session.CurrentRole()
}

// Verify moves a pending alert to verified with the operator's message.
// Checks run in order: permission, existence, state, message.
func (c *Client) Verify(id uint64, message string) (alert.Alert, error) {
	e := c.engine
	if _, err := c.require("verify", session.RoleOperator); err != nil {
		return alert.Alert{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	a, err := e.store.Verify(id, message, e.clock())
	if err != nil {
		e.recordFailure("verify", err)
		return alert.Alert{}, err
	}

	e.metrics.RecordTransition(string(a.State))
	e.log.Info("alert verified",
		logger.Uint64("alert_id", a.ID),
		logger.String("species", string(a.Species)),
		logger.String("location", a.Location))

	e.publishNotice(notice.VerificationNotice(&a))
	e.broadcastLocked(ChangeVerified, &a, session.RoleNone)
	e.publishEvent(events.KindVerified, &a)
	e.refreshGauges()

	return c.project(a.ID)
}

// Reject moves a pending alert to rejected.
func (c *Client) Reject(id uint64) (alert.Alert, error) {
	e := c.engine
	if _, err := c.require("reject", session.RoleOperator); err != nil {
		return alert.Alert{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	a, err := e.store.Reject(id, e.clock())
	if err != nil {
		e.recordFailure("reject", err)
		return alert.Alert{}, err
	}

	e.metrics.RecordTransition(string(a.State))
	e.log.Info("alert rejected",
		logger.Uint64("alert_id", a.ID),
		logger.String("species", string(a.Species)))

	e.broadcastLocked(ChangeRejected, &a, session.RoleNone)
	e.publishEvent(events.KindRejected, &a)
	e.refreshGauges()

	return c.project(a.ID)
}

// MarkRead sets the caller role's read flag. Idempotent.
func (c *Client) MarkRead(id uint64) (alert.Alert, error) {
	return c.setRead("mark_read", id, true)
}

// MarkUnread clears the caller role's read flag. Idempotent.
func (c *Client) MarkUnread(id uint64) (alert.Alert, error) {
	return c.setRead("mark_unread", id, false)
}

func (c *Client) setRead(op string, id uint64, read bool) (alert.Alert, error) {
	e := c.engine
	role, err := c.require(op, session.RoleOperator, session.RoleRecipient)
	if err != nil {
		return alert.Alert{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	a, changed, err := e.store.SetRead(id, role, read, alert.VisibleTo(role))
	if err != nil {
		e.recordFailure(op, err)
		return alert.Alert{}, err
	}
	if changed {
		kind := ChangeRead
		if !read {
			kind = ChangeUnread
		}
		e.metrics.RecordReadChanges(role.String(), 1)
		e.broadcastLocked(kind, &a, role)
		e.refreshGauges()
	}
	return a, nil
}

// MarkAllRead marks every alert visible to role as read for role and returns
// how many flags changed. role must be the caller's own role.
func (c *Client) MarkAllRead(role session.Role) (int, error) {
	e := c.engine
	caller, err := c.require("mark_all_read", session.RoleOperator, session.RoleRecipient)
	if err != nil {
		return 0, err
	}
	if role != caller {
		err := permissionDenied("mark_all_read", caller,
			"cannot mark alerts read on behalf of another role")
		e.recordFailure("mark_all_read", err)
		return 0, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	changed := e.store.MarkAllRead(role, alert.VisibleTo(role))
	if len(changed) > 0 {
		ids := make([]uint64, 0, len(changed))
		for i := range changed {
			ids = append(ids, changed[i].ID)
		}
		e.broadcastReadAllLocked(role, ids)

		e.metrics.RecordReadChanges(role.String(), len(changed))
		e.refreshGauges()
	}
	e.log.Debug("alerts marked read",
		logger.String("role", role.String()),
		logger.Int("changed", len(changed)))
	return len(changed), nil
}

// UnreadCount counts alerts visible to role whose role read flag is false.
// Operators may ask for any role, recipients only for their own.
func (c *Client) UnreadCount(role session.Role) (int, error) {
	if err := c.requireViewOf("unread_count", role); err != nil {
		return 0, err
	}
	return c.engine.store.CountUnread(role, alert.VisibleTo(role)), nil
}

// VisibleAlerts returns the alerts role may see, newest first, narrowed by
// opts. Operators may preview any role, recipients only their own.
func (c *Client) VisibleAlerts(role session.Role, opts *alert.QueryOptions) ([]alert.Alert, error) {
	if err := c.requireViewOf("visible_alerts", role); err != nil {
		return nil, err
	}
	return alert.Query(role, c.engine.store.Snapshot(role), opts), nil
}

// PendingAlerts returns the operator's "needs verification" list, newest first.
func (c *Client) PendingAlerts() ([]alert.Alert, error) {
	if _, err := c.require("pending_alerts", session.RoleOperator); err != nil {
		return nil, err
	}
	_, pending := alert.Partition(c.engine.store.Snapshot(session.RoleOperator))
	if pending == nil {
		pending = []alert.Alert{}
	}
	return pending, nil
}

// Subscribe returns a channel of changes filtered for the caller's role at
// subscribe time, and a context cancelled on Unsubscribe or engine Close.
// Unauthenticated callers receive no alert changes.
func (c *Client) Subscribe() (<-chan Change, context.Context) {
	return c.engine.subscribe(c, c.Role())
}

// Unsubscribe cancels the subscription. The channel is not closed.
func (c *Client) Unsubscribe(ch <-chan Change) {
	c.engine.unsubscribe(ch)
}

// FocusAlert marks an alert as this client's focus, the shared selection
// screens use to show the same record. The alert must be visible to the caller.
func (c *Client) FocusAlert(id uint64) (alert.Alert, error) {
	role, err := c.require("focus", session.RoleOperator, session.RoleRecipient)
	if err != nil {
		return alert.Alert{}, err
	}
	a, err := c.visibleAlert(id, role)
	if err != nil {
		c.engine.recordFailure("focus", err)
		return alert.Alert{}, err
	}

	c.focusMu.Lock()
	c.focusID, c.hasFocus = id, true
	c.focusMu.Unlock()

	c.engine.sendToOwner(c, Change{Kind: ChangeFocused, Alert: a, At: c.engine.clock()})
	return a, nil
}

// ClearFocus drops the focus, if any.
func (c *Client) ClearFocus() {
	c.focusMu.Lock()
	had := c.hasFocus
	c.focusID, c.hasFocus = 0, false
	c.focusMu.Unlock()

	if had {
		c.engine.sendToOwner(c, Change{Kind: ChangeUnfocused, At: c.engine.clock()})
	}
}

// Focused returns the current state of the focused alert. It reports false
// when nothing is focused or the alert is no longer visible to the caller.
func (c *Client) Focused() (alert.Alert, bool) {
	c.focusMu.Lock()
	id, ok := c.focusID, c.hasFocus
	c.focusMu.Unlock()
	if !ok {
		return alert.Alert{}, false
	}

	a, err := c.visibleAlert(id, c.Role())
	if err != nil {
		return alert.Alert{}, false
	}
	return a, true
}

// Notices returns live notices for the caller's role, newest first.
func (c *Client) Notices() []notice.Notice {
	role := c.Role()
	if c.engine.notices == nil || !role.Valid() {
		return []notice.Notice{}
	}
	return c.engine.notices.List(role)
}

func (c *Client) visibleAlert(id uint64, role session.Role) (alert.Alert, error) {
	a, err := c.engine.store.Get(id, role)
	if err != nil {
		return alert.Alert{}, err
	}
	if !alert.VisibleTo(role)(&a) {
		return alert.Alert{}, errors.Newf("alert %d not found", id).
			Component("engine").
			Category(errors.CategoryNotFound).
			Context("alert_id", id).
			Build()
	}
	return a, nil
}

func (c *Client) project(id uint64) (alert.Alert, error) {
	return c.engine.store.Get(id, c.Role())
}

// require checks the caller is authenticated and holds one of roles.
func (c *Client) require(op string, roles ...session.Role) (session.Role, error) {
	if !c.session.IsAuthenticated() {
		err := unauthenticated(op)
		c.engine.recordFailure(op, err)
		return session.RoleNone, err
	}
	role := c.session.CurrentRole()
	for _, r := range roles {
		if r == role {
			return role, nil
		}
	}
	err := permissionDenied(op, role, "role not allowed")
	c.engine.recordFailure(op, err)
	return role, err
}

// requireViewOf allows operators to act for any known role and everyone
// else only for their own.
func (c *Client) requireViewOf(op string, role session.Role) error {
	caller, err := c.require(op, session.RoleOperator, session.RoleRecipient)
	if err != nil {
		return err
	}
	if caller == session.RoleOperator || caller == role {
		return nil
	}
	err = permissionDenied(op, caller, "cannot view another role's alerts")
	c.engine.recordFailure(op, err)
	return err
}

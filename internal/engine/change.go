package engine

import (
	"context"
	"time"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/session"
)

// ChangeKind names what happened to an alert.
type ChangeKind string

const (
	ChangeAdmitted ChangeKind = "admitted"
	ChangeVerified ChangeKind = "verified"
	ChangeRejected ChangeKind = "rejected"
	ChangeRead     ChangeKind = "read"
	ChangeUnread   ChangeKind = "unread"
	// ChangeReadAll carries a zero Alert and the IDs marked read in AlertIDs.
	ChangeReadAll ChangeKind = "read_all"
	// ChangeFocused is only delivered to subscriptions of the client that focused.
	ChangeFocused ChangeKind = "focused"
	// ChangeUnfocused carries a zero Alert.
	ChangeUnfocused ChangeKind = "unfocused"
)

// Change is one store mutation as seen by a subscriber. Alert is projected
// for the subscriber's role, including that role's read flag.
type Change struct {
	Kind     ChangeKind  `json:"kind"`
	Alert    alert.Alert `json:"alert"`
	AlertIDs []uint64    `json:"alert_ids,omitempty"`
	At       time.Time   `json:"at"`
}

// DefaultSubscriberBuffer is the channel capacity of each subscription.
const DefaultSubscriberBuffer = 64

type subscriber struct {
	ch     chan Change
	ctx    context.Context
	cancel context.CancelFunc
	role   session.Role
	owner  *Client
}

func (s *subscriber) cancelled() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

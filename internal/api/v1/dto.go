package api

import (
	"time"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/engine"
	"github.com/tphakala/wildalert/internal/session"
)

// AlertResponse is an alert as returned to API callers. Recipients do not
// see sensor details: confidence, camera and frame reference are omitted.
type AlertResponse struct {
	ID              uint64            `json:"id"`
	Species         alert.Species     `json:"species"`
	Confidence      *int              `json:"confidence,omitempty"`
	DetectedAt      time.Time         `json:"detected_at"`
	Location        string            `json:"location"`
	Coordinates     alert.Coordinates `json:"coordinates"`
	SourceCameraID  string            `json:"source_camera_id,omitempty"`
	ImageRef        string            `json:"image_ref,omitempty"`
	Daylight        alert.Daylight    `json:"daylight,omitempty"`
	State           alert.State       `json:"state"`
	OperatorMessage string            `json:"operator_message,omitempty"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
	Read            bool              `json:"read"`
}

func newAlertResponse(a *alert.Alert, caller session.Role) AlertResponse {
	resp := AlertResponse{
		ID:              a.ID,
		Species:         a.Species,
		DetectedAt:      a.DetectedAt,
		Location:        a.Location,
		Coordinates:     a.Coordinates,
		Daylight:        a.Daylight,
		State:           a.State,
		OperatorMessage: a.OperatorMessage,
		Read:            a.Read,
	}
	if !a.DecidedAt.IsZero() {
		decided := a.DecidedAt
		resp.DecidedAt = &decided
	}
	if caller == session.RoleOperator {
		confidence := a.Confidence
		resp.Confidence = &confidence
		resp.SourceCameraID = a.SourceCameraID
		resp.ImageRef = a.ImageRef
	}
	return resp
}

func newAlertList(alerts []alert.Alert, caller session.Role) []AlertResponse {
	out := make([]AlertResponse, 0, len(alerts))
	for i := range alerts {
		out = append(out, newAlertResponse(&alerts[i], caller))
	}
	return out
}

// AlertListResponse wraps a list with its role and size.
type AlertListResponse struct {
	Role   string          `json:"role"`
	Count  int             `json:"count"`
	Alerts []AlertResponse `json:"alerts"`
}

// ChangeResponse is one SSE change message.
type ChangeResponse struct {
	Kind     engine.ChangeKind `json:"kind"`
	Alert    *AlertResponse    `json:"alert,omitempty"`
	AlertIDs []uint64          `json:"alert_ids,omitempty"`
	At       time.Time         `json:"at"`
}

func newChangeResponse(ch *engine.Change, caller session.Role) ChangeResponse {
	resp := ChangeResponse{Kind: ch.Kind, AlertIDs: ch.AlertIDs, At: ch.At}
	if ch.Alert.ID != 0 {
		a := newAlertResponse(&ch.Alert, caller)
		resp.Alert = &a
	}
	return resp
}

// SessionResponse describes the caller.
type SessionResponse struct {
	Role          string `json:"role"`
	Authenticated bool   `json:"authenticated"`
	Method        string `json:"method"`
}

// LoginRequest selects the role for a new session.
type LoginRequest struct {
	Role string `json:"role"`
}

// VerifyRequest carries the operator's message.
type VerifyRequest struct {
	Message string `json:"message"`
}

// ReadAllRequest names the role whose alerts are marked read. Empty means the caller's.
type ReadAllRequest struct {
	Role string `json:"role"`
}

// CountResponse carries an unread count.
type CountResponse struct {
	Role  string `json:"role"`
	Count int    `json:"count"`
}

package mqtt

import (
	"time"

	"github.com/tphakala/wildalert/internal/alert"
)

// VerifiedPayload is published to <topic>/verified.
//
// Field names are consumed by downstream automations; do not rename them.
type VerifiedPayload struct {
	ID         uint64    `json:"id"`
	Species    string    `json:"species"`
	Location   string    `json:"location"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Message    string    `json:"message"`
	VerifiedAt time.Time `json:"verified_at"`
}

// RejectedPayload is published to <topic>/rejected. It carries no detail.
type RejectedPayload struct {
	ID uint64 `json:"id"`
}

// NewVerifiedPayload builds the export payload for a verified alert.
// Confidence and camera identifiers are not exported.
func NewVerifiedPayload(a *alert.Alert) VerifiedPayload {
	return VerifiedPayload{
		ID:         a.ID,
		Species:    string(a.Species),
		Location:   a.Location,
		Lat:        a.Coordinates.Lat,
		Lng:        a.Coordinates.Lng,
		Message:    a.OperatorMessage,
		VerifiedAt: a.DecidedAt,
	}
}

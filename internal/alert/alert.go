// Package alert holds the alert model, the lifecycle state machine and the
// authoritative in-memory store.
package alert

import (
	"slices"
	"strings"
	"time"

	"github.com/tphakala/wildalert/internal/errors"
)

// State is the lifecycle state of an alert.
type State string

const (
	StatePending  State = "pending"
	StateVerified State = "verified"
	StateRejected State = "rejected"
)

// allowedTransitions lists, for each state, the states it may move to.
// Terminal states have no entry.
var allowedTransitions = map[State][]State{
	StatePending: {StateVerified, StateRejected},
}

// CanTransitionTo reports whether a move from s to next is legal.
func (s State) CanTransitionTo(next State) bool {
	return slices.Contains(allowedTransitions[s], next)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateVerified, StateRejected:
		return true
	}
	return false
}

// ParseState maps a query value to a State.
func ParseState(s string) (State, bool) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Species names the detected animal.
type Species string

const (
	SpeciesTiger    Species = "Tiger"
	SpeciesElephant Species = "Elephant"
	SpeciesLeopard  Species = "Leopard"
	SpeciesBear     Species = "Bear"
)

// DefaultSpecies is the species set used when none is configured.
var DefaultSpecies = []Species{SpeciesTiger, SpeciesElephant, SpeciesLeopard, SpeciesBear}

// Daylight is the light period at the detection site when it was seen.
// Empty when it could not be determined.
type Daylight string

const (
	DaylightDay      Daylight = "day"
	DaylightTwilight Daylight = "twilight"
	DaylightNight    Daylight = "night"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Alert is a detection tracked through verification and delivery.
// Values handed out by the Store are copies.
type Alert struct {
	ID              uint64      `json:"id"`
	Species         Species     `json:"species"`
	Confidence      int         `json:"confidence"`
	DetectedAt      time.Time   `json:"detected_at"`
	Location        string      `json:"location"`
	Coordinates     Coordinates `json:"coordinates"`
	SourceCameraID  string      `json:"source_camera_id"`
	ImageRef        string      `json:"image_ref"`
	Daylight        Daylight    `json:"daylight,omitempty"`
	State           State       `json:"state"`
	OperatorMessage string      `json:"operator_message,omitempty"`
	DecidedAt       time.Time   `json:"decided_at,omitzero"`

	// Read is the read flag of the role the alert was projected for.
	Read bool `json:"read"`
}

// IsPending reports whether the alert still awaits a decision.
func (a *Alert) IsPending() bool { return a.State == StatePending }

// Detection is a raw sensor hit waiting to be admitted.
type Detection struct {
	Species        Species
	Confidence     int
	DetectedAt     time.Time
	Location       string
	Coordinates    Coordinates
	SourceCameraID string
	ImageRef       string
	Daylight       Daylight
}

// Validate checks the fields the store relies on.
func (d *Detection) Validate() error {
	switch {
	case strings.TrimSpace(string(d.Species)) == "":
		return errors.Newf("detection species is empty").
			Component("alert").
			Category(errors.CategoryValidation).
			Build()
	case d.Confidence < 0 || d.Confidence > 100:
		return errors.Newf("detection confidence %d outside [0,100]", d.Confidence).
			Component("alert").
			Category(errors.CategoryValidation).
			Context("confidence", d.Confidence).
			Build()
	case strings.TrimSpace(d.SourceCameraID) == "":
		return errors.Newf("detection camera id is empty").
			Component("alert").
			Category(errors.CategoryValidation).
			Build()
	case d.DetectedAt.IsZero():
		return errors.Newf("detection time is not set").
			Component("alert").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

package ingest

import (
	"time"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/errors"
)

// Config controls how detections are synthesized.
type Config struct {
	Interval      time.Duration
	Probability   float64
	Species       []alert.Species
	Cameras       []string
	Base          alert.Coordinates
	Radius        float64 // jitter in degrees per axis
	Location      string
	FramePool     []string
	MinConfidence int
	MaxConfidence int
}

// DefaultConfig matches the original camera feed simulation.
func DefaultConfig() Config {
	return Config{
		Interval:      15 * time.Second,
		Probability:   0.4,
		Species:       append([]alert.Species(nil), alert.DefaultSpecies...),
		Cameras:       []string{"cam-001", "cam-002", "cam-003"},
		Base:          alert.Coordinates{Lat: 26.8851, Lng: 93.7792},
		Radius:        0.01,
		Location:      "Core Zone Section A",
		MinConfidence: 70,
		MaxConfidence: 100,
	}
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, errors.Newf(format, args...).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build())
	}

	if c.Interval <= 0 {
		add("ingest interval must be positive, got %s", c.Interval)
	}
	if c.Probability < 0 || c.Probability > 1 {
		add("admission probability must be within [0,1], got %v", c.Probability)
	}
	if len(c.Species) == 0 {
		add("at least one species is required")
	}
	if len(c.Cameras) == 0 {
		add("at least one camera is required")
	}
	if c.Radius < 0 {
		add("jitter radius must not be negative, got %v", c.Radius)
	}
	if c.MinConfidence < 0 || c.MaxConfidence > 100 || c.MinConfidence > c.MaxConfidence {
		add("confidence range [%d,%d] must lie within [0,100]", c.MinConfidence, c.MaxConfidence)
	}

	return errors.Join(errs...)
}

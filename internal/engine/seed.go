package engine

import (
	"fmt"
	"time"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/logger"
)

type seedAlert struct {
	detection alert.Detection
	ago       time.Duration
	message   string // empty keeps the alert pending
}

func demoAlerts() []seedAlert {
	return []seedAlert{
		{
			detection: alert.Detection{
				Species:        alert.SpeciesTiger,
				Confidence:     95,
				Location:       "Core Zone Section A",
				Coordinates:    alert.Coordinates{Lat: 26.8851, Lng: 93.7792},
				SourceCameraID: "cam-001",
				ImageRef:       "frame/cam-001/seed-tiger",
			},
			ago:     5 * time.Minute,
			message: "Large tiger spotted moving south. Stay alert.",
		},
		{
			detection: alert.Detection{
				Species:        alert.SpeciesElephant,
				Confidence:     88,
				Location:       "Core Zone Section B",
				Coordinates:    alert.Coordinates{Lat: 26.8950, Lng: 93.7850},
				SourceCameraID: "cam-002",
				ImageRef:       "frame/cam-002/seed-elephant",
			},
			ago:     15 * time.Minute,
			message: "Herd of elephants near eastern village boundary.",
		},
		{
			detection: alert.Detection{
				Species:        alert.SpeciesLeopard,
				Confidence:     82,
				Location:       "Core Zone Section C",
				Coordinates:    alert.Coordinates{Lat: 26.8750, Lng: 93.7650},
				SourceCameraID: "cam-003",
				ImageRef:       "frame/cam-003/seed-leopard",
			},
			ago: 30 * time.Minute,
		},
	}
}

// SeedDemo loads the three historical demo alerts relative to the engine
// clock. Seeded alerts raise no notices, changes or lifecycle events.
func (e *Engine) SeedDemo() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	now := e.clock()
	for _, s := range demoAlerts() {
		d := s.detection
		d.DetectedAt = now.Add(-s.ago)

		a, err := e.store.Admit(d)
		if err != nil {
			return fmt.Errorf("seed %s: %w", d.Species, err)
		}
		if s.message == "" {
			continue
		}
		if _, err := e.store.Verify(a.ID, s.message, d.DetectedAt); err != nil {
			return fmt.Errorf("seed %s: %w", d.Species, err)
		}
	}

	e.refreshGauges()
	e.log.Info("demo alerts seeded", logger.Int("count", e.store.Len()))
	return nil
}

// Package suncalc classifies detection times as day, twilight or night for
// a fixed site.
package suncalc

import (
	"fmt"
	"sync"
	"time"

	"github.com/sj14/astral/pkg/astral"

	"github.com/tphakala/wildalert/internal/alert"
)

// SunEvents holds one day's sun events in UTC.
type SunEvents struct {
	CivilDawn time.Time
	Sunrise   time.Time
	Sunset    time.Time
	CivilDusk time.Time
}

// Calculator computes and caches sun events for one observer.
type Calculator struct {
	observer astral.Observer

	mu    sync.RWMutex
	cache map[string]SunEvents // keyed by UTC date
}

// New returns a Calculator for the site at latitude, longitude.
func New(latitude, longitude float64) *Calculator {
	return &Calculator{
		observer: astral.Observer{Latitude: latitude, Longitude: longitude},
		cache:    make(map[string]SunEvents),
	}
}

// Events returns the sun events for the UTC calendar day containing date.
func (c *Calculator) Events(date time.Time) (SunEvents, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	key := day.Format(time.DateOnly)

	c.mu.RLock()
	ev, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return ev, nil
	}

	ev, err := c.compute(day)
	if err != nil {
		return SunEvents{}, err
	}

	c.mu.Lock()
	c.cache[key] = ev
	c.mu.Unlock()
	return ev, nil
}

func (c *Calculator) compute(day time.Time) (SunEvents, error) {
	var ev SunEvents
	var err error
	if ev.CivilDawn, err = astral.Dawn(c.observer, day, astral.DepressionCivil); err != nil {
		return SunEvents{}, fmt.Errorf("civil dawn on %s: %w", day.Format(time.DateOnly), err)
	}
	if ev.Sunrise, err = astral.Sunrise(c.observer, day); err != nil {
		return SunEvents{}, fmt.Errorf("sunrise on %s: %w", day.Format(time.DateOnly), err)
	}
	if ev.Sunset, err = astral.Sunset(c.observer, day); err != nil {
		return SunEvents{}, fmt.Errorf("sunset on %s: %w", day.Format(time.DateOnly), err)
	}
	if ev.CivilDusk, err = astral.Dusk(c.observer, day, astral.DepressionCivil); err != nil {
		return SunEvents{}, fmt.Errorf("civil dusk on %s: %w", day.Format(time.DateOnly), err)
	}
	return ev, nil
}

// DaylightAt classifies t by the most recent sun event before it. Events of
// the neighbouring UTC days are included since far from Greenwich a local
// day straddles two UTC dates.
func (c *Calculator) DaylightAt(t time.Time) (alert.Daylight, error) {
	t = t.UTC()

	var last time.Time
	period := alert.Daylight("")
	for _, offset := range []int{-1, 0, 1} {
		ev, err := c.Events(t.AddDate(0, 0, offset))
		if err != nil {
			return "", err
		}
		for _, e := range []struct {
			at     time.Time
			period alert.Daylight
		}{
			{ev.CivilDawn, alert.DaylightTwilight},
			{ev.Sunrise, alert.DaylightDay},
			{ev.Sunset, alert.DaylightTwilight},
			{ev.CivilDusk, alert.DaylightNight},
		} {
			if !e.at.After(t) && e.at.After(last) {
				last, period = e.at, e.period
			}
		}
	}
	if period == "" {
		return "", fmt.Errorf("no sun event within a day before %s", t.Format(time.RFC3339))
	}
	return period, nil
}

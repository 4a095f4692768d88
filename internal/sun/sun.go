package sun

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Period classifies a moment relative to the local solar day.
type Period int

const (
	PeriodDay Period = iota
	PeriodNight
	PeriodTwilight
	PeriodPolar // sun never rises or never sets on this date
)

func (p Period) String() string {
	switch p {
	case PeriodDay:
		return "day"
	case PeriodNight:
		return "night"
	case PeriodTwilight:
		return "twilight"
	default:
		return "polar"
	}
}

// Calculator answers sun-event questions for one fixed position.
type Calculator struct {
	Lat, Lon float64
}

// Events returns sunrise and sunset for the date of t, in t's location.
// ok is false on polar days when the sun never crosses the horizon.
func (c Calculator) Events(t time.Time) (rise, set time.Time, ok bool) {
	rise, set = sunrise.SunriseSunset(c.Lat, c.Lon, t.Year(), t.Month(), t.Day())
	if rise.IsZero() || set.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	return rise.In(t.Location()), set.In(t.Location()), true
}

// NearEvent reports whether t falls within window of today's or
// tomorrow's sunrise or sunset. The tomorrow check matters late in the
// evening when the next event is after midnight.
func (c Calculator) NearEvent(t time.Time, window time.Duration) bool {
	for _, day := range []time.Time{t, t.AddDate(0, 0, 1)} {
		rise, set, ok := c.Events(day)
		if !ok {
			continue
		}
		if within(t, rise, window) || within(t, set, window) {
			return true
		}
	}
	return false
}

// PeriodAt classifies t as day, night or twilight. Twilight is the
// window around sunrise and sunset.
func (c Calculator) PeriodAt(t time.Time, window time.Duration) Period {
	rise, set, ok := c.Events(t)
	if !ok {
		return PeriodPolar
	}
	if c.NearEvent(t, window) {
		return PeriodTwilight
	}
	if t.After(rise) && t.Before(set) {
		return PeriodDay
	}
	return PeriodNight
}

func within(t, event time.Time, window time.Duration) bool {
	d := t.Sub(event)
	if d < 0 {
		d = -d
	}
	return d <= window
}

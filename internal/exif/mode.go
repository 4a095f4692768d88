package exif

import "lucarne/internal/sun"

// Mode is a camera's exposure regime, derived from what the sensor
// actually reported rather than from the clock.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeDay
	ModeNight
	ModeAstro
)

func (m Mode) String() string {
	switch m {
	case ModeDay:
		return "day"
	case ModeNight:
		return "night"
	case ModeAstro:
		return "astro"
	default:
		return "unknown"
	}
}

// Thresholds are composite-value (ISO x exposure seconds) cut points.
// Below Day is daylight, at or above Night is night, at or above Astro
// is a long-exposure astro frame. The band between Day and Night is
// ambiguous and resolved by solar position.
type Thresholds struct {
	Day   float64
	Night float64
	Astro float64
}

// DefaultThresholds suit typical fixed outdoor cameras.
var DefaultThresholds = Thresholds{Day: 2, Night: 3, Astro: 2000}

// Classify maps an exposure reading to a mode. prev is the camera's
// current mode and wins when the reading falls in the ambiguous band
// outside twilight; twilight resolves the band to Astro. A reading
// without usable tags yields ModeUnknown.
func Classify(e Exposure, period sun.Period, prev Mode, t Thresholds) Mode {
	if !e.Valid() {
		return ModeUnknown
	}
	c := e.Composite()
	switch {
	case t.Astro > 0 && c >= t.Astro:
		return ModeAstro
	case c >= t.Night:
		return ModeNight
	case c <= t.Day:
		return ModeDay
	}
	if period == sun.PeriodTwilight {
		return ModeAstro
	}
	if prev == ModeUnknown {
		return ModeDay
	}
	return prev
}

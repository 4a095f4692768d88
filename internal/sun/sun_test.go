package sun

import (
	"testing"
	"time"
)

// Paris, a comfortably non-polar latitude.
var paris = Calculator{Lat: 48.8566, Lon: 2.3522}

func TestEvents(t *testing.T) {
	day := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	rise, set, ok := paris.Events(day)
	if !ok {
		t.Fatal("no events for Paris at the solstice")
	}
	if !rise.Before(set) {
		t.Errorf("sunrise %v not before sunset %v", rise, set)
	}
	// Midsummer in Paris: sun up before 05:00 UTC, down after 19:00 UTC.
	if rise.Hour() > 5 {
		t.Errorf("sunrise at %v, expected early morning", rise)
	}
	if set.Hour() < 19 {
		t.Errorf("sunset at %v, expected late evening", set)
	}
}

func TestEventsPolar(t *testing.T) {
	svalbard := Calculator{Lat: 78.22, Lon: 15.63}
	midsummer := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	if _, _, ok := svalbard.Events(midsummer); ok {
		t.Error("midnight sun should report no events")
	}
	midwinter := time.Date(2026, 12, 21, 12, 0, 0, 0, time.UTC)
	if _, _, ok := svalbard.Events(midwinter); ok {
		t.Error("polar night should report no events")
	}
}

func TestPeriodAt(t *testing.T) {
	day := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	rise, set, ok := paris.Events(day)
	if !ok {
		t.Fatal("no events")
	}
	window := 30 * time.Minute

	if got := paris.PeriodAt(rise.Add(-5*time.Minute), window); got != PeriodTwilight {
		t.Errorf("just before sunrise = %v, want twilight", got)
	}
	if got := paris.PeriodAt(rise.Add(2*time.Hour), window); got != PeriodDay {
		t.Errorf("mid-morning = %v, want day", got)
	}
	if got := paris.PeriodAt(set.Add(20*time.Minute), window); got != PeriodTwilight {
		t.Errorf("just after sunset = %v, want twilight", got)
	}
	if got := paris.PeriodAt(rise.Add(-3*time.Hour), window); got != PeriodNight {
		t.Errorf("small hours = %v, want night", got)
	}

	svalbard := Calculator{Lat: 78.22, Lon: 15.63}
	if got := svalbard.PeriodAt(day.Add(12*time.Hour), window); got != PeriodPolar {
		t.Errorf("midnight sun = %v, want polar", got)
	}
}

func TestNearEvent(t *testing.T) {
	day := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	rise, _, _ := paris.Events(day)

	if !paris.NearEvent(rise.Add(10*time.Minute), 30*time.Minute) {
		t.Error("10 min after sunrise should be near")
	}
	if paris.NearEvent(rise.Add(3*time.Hour), 30*time.Minute) {
		t.Error("3 h after sunrise should not be near")
	}
}

package exif

import (
	"bytes"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// Exposure holds the fields we read from a captured frame.
type Exposure struct {
	// Seconds is the exposure time. Zero when the tag is absent.
	Seconds float64
	// ISO sensitivity. Zero when the tag is absent.
	ISO int
}

// Valid reports whether both fields were present in the frame.
func (e Exposure) Valid() bool { return e.Seconds > 0 && e.ISO > 0 }

// Composite is the product of ISO and exposure time, the single scalar
// the mode classifier thresholds against. A bright day at ISO 100 and
// 1/200s gives 0.5; a 10s astro frame at ISO 400 gives 4000.
func (e Exposure) Composite() float64 {
	return float64(e.ISO) * e.Seconds
}

// Extract decodes the EXIF block of a JPEG and returns exposure data.
// Images without EXIF are common (many IP cameras strip it); callers
// treat an error here as "no data", not as a capture failure.
func Extract(data []byte) (Exposure, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return Exposure{}, fmt.Errorf("decode exif: %w", err)
	}

	var out Exposure
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			out.Seconds = float64(num) / float64(den)
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if v, err := tag.Int(0); err == nil {
			out.ISO = v
		}
	}
	if !out.Valid() {
		return out, fmt.Errorf("exposure tags missing")
	}
	return out, nil
}

package daylight

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"lucarne/internal/daydir"
)

// MonthlyPath returns where the composite of a month lives:
// <cameraDir>/daylight/<YYYY-MM>.png.
func MonthlyPath(cameraDir string, year int, month time.Month) string {
	return filepath.Join(cameraDir, DaylightDirName, fmt.Sprintf("%04d-%02d.png", year, int(month)))
}

// BuildMonthly rebuilds the month composite from the daily bands: one
// column per day of the month, 1440 rows, black columns for days
// without a band. Rebuilt from scratch each time so a regenerated daily
// band propagates.
func BuildMonthly(cameraDir string, year int, month time.Month) (string, error) {
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	composite := image.NewNRGBA(image.Rect(0, 0, daysInMonth, MinutesPerDay))
	black := color.NRGBA{0, 0, 0, 255}

	for day := 1; day <= daysInMonth; day++ {
		x := day - 1
		bandPath := filepath.Join(cameraDir,
			fmt.Sprintf("%04d-%02d-%02d", year, int(month), day), daydir.BandFile)

		band, err := imaging.Open(bandPath)
		if err != nil {
			for y := 0; y < MinutesPerDay; y++ {
				composite.SetNRGBA(x, y, black)
			}
			continue
		}
		nrgba := imaging.Clone(band)
		for y := 0; y < MinutesPerDay && y < nrgba.Bounds().Dy(); y++ {
			composite.SetNRGBA(x, y, nrgba.NRGBAAt(0, y))
		}
	}

	out := MonthlyPath(cameraDir, year, month)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	if err := writePNGAtomic(out, composite); err != nil {
		return "", err
	}
	return out, nil
}

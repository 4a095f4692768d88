package daylight

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/disintegration/imaging"

	"lucarne/internal/daydir"
)

// MinutesPerDay is the band height: one pixel per minute.
const MinutesPerDay = 1440

// DaylightDirName holds monthly composites inside a camera directory.
const DaylightDirName = "daylight"

// filenameMinute pulls hour and minute out of the timestamped image
// names.
var filenameMinute = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T(\d{2})-(\d{2})`)

// MinuteOfDay extracts the 0-1439 minute index from an image filename.
// Returns -1 when the name does not carry a timestamp.
func MinuteOfDay(filename string) int {
	m := filenameMinute.FindStringSubmatch(filename)
	if m == nil {
		return -1
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return -1
	}
	return hour*60 + minute
}

// averageColor reduces an area of an image to its mean color by
// box-resizing the crop to a single pixel.
func averageColor(img image.Image, area *image.Rectangle) color.NRGBA {
	if area != nil {
		r := area.Intersect(img.Bounds())
		if !r.Empty() {
			img = imaging.Crop(img, r)
		}
	}
	one := imaging.Resize(img, 1, 1, imaging.Box)
	return one.NRGBAAt(0, 0)
}

// BuildBand writes daylight.png into the day directory: a 1 pixel wide,
// 1440 pixel tall column where row N is the average sky color during
// minute N. Minutes without a capture reuse the previous minute's
// color; minutes before the first capture stay black. Extra captures
// within the same minute are ignored.
func BuildBand(dayDir string, skyArea *image.Rectangle) error {
	images, err := daydir.ListImages(dayDir)
	if err != nil {
		return err
	}

	band := image.NewNRGBA(image.Rect(0, 0, 1, MinutesPerDay))
	last := color.NRGBA{0, 0, 0, 255}
	seen := -1
	row := 0

	fill := func(until int) {
		for ; row < until && row < MinutesPerDay; row++ {
			band.SetNRGBA(0, row, last)
		}
	}

	for _, path := range images {
		minute := MinuteOfDay(filepath.Base(path))
		if minute < 0 || minute == seen {
			continue
		}
		img, err := imaging.Open(path)
		if err != nil {
			// A single unreadable frame must not sink the band.
			continue
		}
		fill(minute)
		last = averageColor(img, skyArea)
		seen = minute
		if row < MinutesPerDay {
			band.SetNRGBA(0, row, last)
			row++
		}
	}
	fill(MinutesPerDay)

	return writePNGAtomic(filepath.Join(dayDir, daydir.BandFile), band)
}

func writePNGAtomic(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return daydir.WriteFileAtomic(path, buf.Bytes())
}

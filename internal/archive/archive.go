package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"lucarne/internal/daydir"
	"lucarne/internal/metrics"
)

// KeepImages is how many of a day's newest frames survive archiving.
// The sample is enough to re-derive a band or thumbnail strip without
// keeping thousands of frames around.
const KeepImages = 48

// ErrNotEligible marks a day that cannot be archived yet: artifacts
// missing or the day is still receiving captures.
var ErrNotEligible = fmt.Errorf("archive: day not eligible")

// Archiver prunes finished days down to their artifacts plus a sample
// of frames.
type Archiver struct {
	Layout   daydir.Layout
	Locks    *daydir.LockTable
	DailyExt string
	// now is swappable for tests.
	Now func() time.Time
}

// ArchiveDay archives one day directory of one camera: verify the
// artifacts exist, prune to the newest KeepImages frames, drop the
// marker. Idempotent; a marked day returns nil immediately. Never
// touches the current day, judged in the camera's own timezone.
func (a *Archiver) ArchiveDay(camera, day string, loc *time.Location) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	today := now().In(loc).Format(daydir.DayFormat)
	if day >= today {
		return fmt.Errorf("%w: %s is not over", ErrNotEligible, day)
	}

	dayDir := filepath.Join(a.Layout.CameraDir(camera), day)

	lock := a.Locks.Lock(camera, day)
	lock.Lock()
	defer lock.Unlock()

	if daydir.IsArchived(dayDir) {
		return nil
	}
	// Both artifacts must exist immediately before any deletion; the
	// frames are the only source they can be rebuilt from.
	if !daydir.HasDailyTimelapse(dayDir, a.DailyExt) {
		return fmt.Errorf("%w: %s missing daily timelapse", ErrNotEligible, day)
	}
	if !daydir.HasBand(dayDir) {
		return fmt.Errorf("%w: %s missing daylight band", ErrNotEligible, day)
	}

	images, err := daydir.ListImages(dayDir)
	if err != nil {
		return err
	}
	pruned := 0
	if len(images) > KeepImages {
		// Names sort chronologically; everything before the newest
		// KeepImages goes.
		for _, path := range images[:len(images)-KeepImages] {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("archive: prune %s: %w", path, err)
			}
			pruned++
		}
	}

	if err := daydir.MarkArchived(dayDir, now()); err != nil {
		return err
	}

	metrics.ArchivedDaysTotal.WithLabelValues(camera).Inc()
	metrics.PrunedImagesTotal.WithLabelValues(camera).Add(float64(pruned))
	log.Infof("Camera %s: archived %s, pruned %d of %d frames", camera, day, pruned, len(images))
	return nil
}

// SweepCamera archives every eligible past day of one camera. Days that
// are not eligible are skipped quietly; they will be retried next pass
// once their artifacts exist.
func (a *Archiver) SweepCamera(camera string, loc *time.Location) error {
	days, err := a.Layout.ListDayDirs(camera)
	if err != nil {
		return err
	}
	for _, day := range days {
		err := a.ArchiveDay(camera, day, loc)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotEligible):
			log.Debugf("Camera %s: %v", camera, err)
		default:
			log.Warnf("Camera %s: archiving %s failed: %v", camera, day, err)
		}
	}
	return nil
}

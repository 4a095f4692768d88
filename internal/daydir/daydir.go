package daydir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Artifact names inside a day directory.
const (
	ArchivedMarker = "archived"
	BandFile       = "daylight.png"
	LatestFile     = "latest.jpg"
	MetadataFile   = "metadata.json"
	DayFormat      = "2006-01-02"
)

// FilenameFormat names images with local time plus the zone
// abbreviation. Around a DST fall-back the same wall-clock hour repeats;
// the abbreviation keeps the two files distinct and lexical order still
// matches capture order within each zone.
const FilenameFormat = "2006-01-02T15-04-05MST"

var dayDirPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Layout resolves every on-disk path of the photo tree:
// <root>/<camera>/<YYYY-MM-DD>/<timestamped>.jpg plus latest.jpg and
// metadata.json at the camera level.
type Layout struct {
	Root string
}

// CameraDir returns the directory of one camera.
func (l Layout) CameraDir(camera string) string {
	return filepath.Join(l.Root, camera)
}

// DayDir returns the day directory for the date of t in t's location.
func (l Layout) DayDir(camera string, t time.Time) string {
	return filepath.Join(l.Root, camera, t.Format(DayFormat))
}

// DayDirName returns the day directory for an already formatted
// YYYY-MM-DD day string.
func (l Layout) DayDirName(camera, day string) string {
	return filepath.Join(l.Root, camera, day)
}

// ImagePath returns the dated image path for a capture at t.
func (l Layout) ImagePath(camera string, t time.Time) string {
	return filepath.Join(l.DayDir(camera, t), t.Format(FilenameFormat)+".jpg")
}

// LatestPath returns the camera's latest.jpg path.
func (l Layout) LatestPath(camera string) string {
	return filepath.Join(l.CameraDir(camera), LatestFile)
}

// MetadataPath returns the camera's metadata.json path.
func (l Layout) MetadataPath(camera string) string {
	return filepath.Join(l.CameraDir(camera), MetadataFile)
}

// Metadata describes the camera's most recent capture for UI polling.
type Metadata struct {
	Camera    string    `json:"camera"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	SSIM      float64   `json:"ssim"`
	IntervalS float64   `json:"interval_s"`
	Mode      string    `json:"mode"`
}

// WriteImage persists a dated frame, creating the day directory as
// needed, and returns the final path.
func (l Layout) WriteImage(camera string, t time.Time, data []byte) (string, error) {
	path := l.ImagePath(camera, t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// WriteLatest atomically replaces latest.jpg and metadata.json. Readers
// polling either file always see a complete previous or complete new
// version, never a partial write.
func (l Layout) WriteLatest(camera string, data []byte, meta Metadata) error {
	if err := os.MkdirAll(l.CameraDir(camera), 0o755); err != nil {
		return err
	}
	if err := WriteFileAtomic(l.LatestPath(camera), data); err != nil {
		return err
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(l.MetadataPath(camera), metaJSON)
}

// WriteFileAtomic writes data to a temporary file in the target's
// directory and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ListDayDirs returns the camera's day directory names, oldest first.
// Non-date entries such as latest.jpg or a daylight directory are
// skipped.
func (l Layout) ListDayDirs(camera string) ([]string, error) {
	entries, err := os.ReadDir(l.CameraDir(camera))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var days []string
	for _, e := range entries {
		if e.IsDir() && dayDirPattern.MatchString(e.Name()) {
			days = append(days, e.Name())
		}
	}
	sort.Strings(days)
	return days, nil
}

// ListImages returns the jpg files of a day directory sorted by name,
// which for our timestamped names is capture order.
func ListImages(dayDir string) ([]string, error) {
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jpg" {
			images = append(images, filepath.Join(dayDir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

// HasDailyTimelapse reports whether the day directory contains its
// finalized timelapse, <date>.<ext>.
func HasDailyTimelapse(dayDir, ext string) bool {
	name := filepath.Base(dayDir) + "." + ext
	_, err := os.Stat(filepath.Join(dayDir, name))
	return err == nil
}

// HasBand reports whether the day directory contains its daylight band.
func HasBand(dayDir string) bool {
	_, err := os.Stat(filepath.Join(dayDir, BandFile))
	return err == nil
}

// IsArchived reports whether the day directory carries the archived
// marker.
func IsArchived(dayDir string) bool {
	_, err := os.Stat(filepath.Join(dayDir, ArchivedMarker))
	return err == nil
}

// MarkArchived drops the archived marker into the day directory. The
// marker records when archiving completed.
func MarkArchived(dayDir string, t time.Time) error {
	content := fmt.Sprintf("archived at %s\n", t.Format(time.RFC3339))
	return WriteFileAtomic(filepath.Join(dayDir, ArchivedMarker), []byte(content))
}

// DirSize returns the total size in bytes of all regular files under
// dir.
func DirSize(dir string) (int64, error) {
	var size int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return size, err
}

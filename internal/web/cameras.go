package web

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"html"
	"math"
	"path"
	"path/filepath"
	"sort"

	"lucarne/internal/config"
	"lucarne/internal/daydir"
)

// CameraEntry is one camera's public metadata in cameras.json.
type CameraEntry struct {
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Image           string  `json:"image"`
	DynamicMetadata string  `json:"dynamic_metadata"`
	SnapIntervalS   string  `json:"snap_interval_s"`
	Lat             float64 `json:"lat,omitempty"`
	Lon             float64 `json:"lon,omitempty"`
	LatestTimelapse string  `json:"latest_timelapse,omitempty"`
}

// Metadata is the cameras.json document consumed by the web frontend.
type Metadata struct {
	Cameras []CameraEntry  `json:"cameras"`
	Global  GlobalMetadata `json:"global"`
}

// GlobalMetadata carries deployment-level UI hints.
type GlobalMetadata struct {
	Title                          string `json:"title"`
	TimelapseFileExtension         string `json:"timelapse_file_extension"`
	FrequentTimelapseFileExtension string `json:"frequent_timelapse_file_extension"`
	LandingPage                    string `json:"landing_page"`
}

func hashToUnit(b []byte) float64 {
	return float64(binary.BigEndian.Uint64(b)) / float64(1<<63) / 2
}

// JitterPosition deterministically displaces a camera's published
// coordinates by up to jitterM meters. Same inputs, same output: the
// marker does not wander between reloads, but never sits on the real
// position either.
func JitterPosition(name string, lat, lon, jitterM float64) (float64, float64) {
	if jitterM <= 0 {
		return lat, lon
	}
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s:%v:%v", name, lat, lon)))
	angle := hashToUnit(digest[:8]) * 2 * math.Pi
	distance := hashToUnit(digest[8:16]) * jitterM

	northM := math.Sin(angle) * distance
	eastM := math.Cos(angle) * distance

	const metersPerDegLat = 111320.0
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	return lat + northM/metersPerDegLat, lon + eastM/(metersPerDegLat*cosLat)
}

// BuildMetadata assembles the cameras.json document from the current
// configuration and the latest finalized timelapses on disk.
func BuildMetadata(cfg *config.Config, layout daydir.Layout) Metadata {
	meta := Metadata{
		Global: GlobalMetadata{
			Title:                          cfg.Global.Title,
			TimelapseFileExtension:         cfg.Timelapse.Daily.FileExtension,
			FrequentTimelapseFileExtension: cfg.Timelapse.Frequent.FileExtension,
			LandingPage:                    cfg.Global.LandingPage,
		},
	}

	names := make([]string, 0, len(cfg.Cameras))
	for name := range cfg.Cameras {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cam := cfg.Cameras[name]
		entry := CameraEntry{
			Title:           name,
			Description:     cam.Description,
			Image:           path.Join("photos", name, daydir.LatestFile),
			DynamicMetadata: path.Join("photos", name, daydir.MetadataFile),
			SnapIntervalS:   "dynamic",
		}
		if cam.FixedInterval() {
			entry.SnapIntervalS = fmt.Sprintf("%g", cam.SnapIntervalS)
		}
		if cam.HasCoordinates() {
			entry.Lat, entry.Lon = JitterPosition(name, cam.Latitude, cam.Longitude, cam.JitterM)
		}
		if tl := latestTimelapse(layout, name, cfg.Timelapse.Daily.FileExtension); tl != "" {
			entry.LatestTimelapse = tl
		}
		meta.Cameras = append(meta.Cameras, entry)
	}
	return meta
}

// latestTimelapse finds the newest day with a finalized timelapse and
// returns its path relative to the work dir.
func latestTimelapse(layout daydir.Layout, camera, ext string) string {
	days, err := layout.ListDayDirs(camera)
	if err != nil {
		return ""
	}
	for i := len(days) - 1; i >= 0; i-- {
		dayDir := filepath.Join(layout.CameraDir(camera), days[i])
		if daydir.HasDailyTimelapse(dayDir, ext) {
			return path.Join("photos", camera, days[i], days[i]+"."+ext)
		}
	}
	return ""
}

// WriteMetadata atomically rewrites cameras.json in workDir, plus an
// index.html redirect when a landing page is configured.
func WriteMetadata(cfg *config.Config, layout daydir.Layout, workDir string) error {
	meta := BuildMetadata(cfg, layout)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := daydir.WriteFileAtomic(filepath.Join(workDir, "cameras.json"), data); err != nil {
		return err
	}
	if cfg.Global.LandingPage == "" {
		return nil
	}
	redirect := fmt.Sprintf("<!DOCTYPE html>\n<html><head><meta http-equiv=\"refresh\" content=\"0; url=%s\"></head></html>\n",
		html.EscapeString(cfg.Global.LandingPage))
	return daydir.WriteFileAtomic(filepath.Join(workDir, "index.html"), []byte(redirect))
}

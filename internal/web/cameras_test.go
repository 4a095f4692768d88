package web

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lucarne/internal/config"
	"lucarne/internal/daydir"
)

func TestJitterPositionDeterministic(t *testing.T) {
	lat1, lon1 := JitterPosition("front", 48.85, 2.35, 500)
	lat2, lon2 := JitterPosition("front", 48.85, 2.35, 500)
	if lat1 != lat2 || lon1 != lon2 {
		t.Errorf("same inputs gave different positions: (%v,%v) vs (%v,%v)", lat1, lon1, lat2, lon2)
	}

	lat3, lon3 := JitterPosition("back", 48.85, 2.35, 500)
	if lat3 == lat1 && lon3 == lon1 {
		t.Error("different cameras should get different displacements")
	}
}

func TestJitterPositionBounded(t *testing.T) {
	const jitterM = 250.0
	names := []string{"a", "b", "c", "harbor", "summit"}
	for _, name := range names {
		lat, lon := JitterPosition(name, 48.85, 2.35, jitterM)
		dLatM := (lat - 48.85) * 111320
		dLonM := (lon - 2.35) * 111320 * math.Cos(48.85*math.Pi/180)
		dist := math.Hypot(dLatM, dLonM)
		if dist > jitterM+1 {
			t.Errorf("camera %s displaced %.1f m, budget %v m", name, dist, jitterM)
		}
	}
}

func TestJitterPositionDisabled(t *testing.T) {
	lat, lon := JitterPosition("cam", 48.85, 2.35, 0)
	if lat != 48.85 || lon != 2.35 {
		t.Errorf("zero jitter must keep exact coordinates, got (%v,%v)", lat, lon)
	}
}

func metadataConfig() *config.Config {
	cfg := &config.Config{
		Cameras: map[string]*config.CameraConfig{
			"zulu": {Name: "zulu", URL: "http://x/snap.jpg", SnapIntervalS: 120},
			"alpha": {
				Name: "alpha", URL: "http://y/snap.jpg",
				Description: "harbor view",
				Latitude:    48.85, Longitude: 2.35, JitterM: 100,
			},
		},
	}
	cfg.Global.Title = "Skylines"
	cfg.Timelapse.Daily.FileExtension = "webm"
	cfg.Timelapse.Frequent.FileExtension = "mp4"
	return cfg
}

func TestBuildMetadata(t *testing.T) {
	layout := daydir.Layout{Root: t.TempDir()}
	dayDir := filepath.Join(layout.CameraDir("alpha"), "2026-08-26")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dayDir, "2026-08-26.webm"), []byte("video"), 0o644)

	meta := BuildMetadata(metadataConfig(), layout)

	if len(meta.Cameras) != 2 {
		t.Fatalf("cameras = %d, want 2", len(meta.Cameras))
	}
	if meta.Cameras[0].Title != "alpha" || meta.Cameras[1].Title != "zulu" {
		t.Errorf("cameras not sorted by name: %s, %s", meta.Cameras[0].Title, meta.Cameras[1].Title)
	}

	alpha := meta.Cameras[0]
	if alpha.SnapIntervalS != "dynamic" {
		t.Errorf("adaptive camera interval = %q, want dynamic", alpha.SnapIntervalS)
	}
	if alpha.Image != "photos/alpha/latest.jpg" {
		t.Errorf("image path = %q", alpha.Image)
	}
	if alpha.LatestTimelapse != "photos/alpha/2026-08-26/2026-08-26.webm" {
		t.Errorf("latest timelapse = %q", alpha.LatestTimelapse)
	}
	if alpha.Lat == 48.85 && alpha.Lon == 2.35 {
		t.Error("published coordinates should be jittered")
	}
	if alpha.Lat == 0 {
		t.Error("jittered latitude missing")
	}

	zulu := meta.Cameras[1]
	if zulu.SnapIntervalS != "120" {
		t.Errorf("fixed camera interval = %q, want 120", zulu.SnapIntervalS)
	}
	if zulu.LatestTimelapse != "" {
		t.Errorf("camera without encoded days got timelapse %q", zulu.LatestTimelapse)
	}
	if meta.Global.Title != "Skylines" || meta.Global.TimelapseFileExtension != "webm" {
		t.Errorf("global metadata = %+v", meta.Global)
	}
}

func TestWriteMetadata(t *testing.T) {
	root := t.TempDir()
	layout := daydir.Layout{Root: root}
	if err := WriteMetadata(metadataConfig(), layout, root); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "cameras.json"))
	if err != nil {
		t.Fatal(err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("cameras.json not valid JSON: %v", err)
	}
	if len(meta.Cameras) != 2 {
		t.Errorf("round-tripped cameras = %d, want 2", len(meta.Cameras))
	}

	// No landing page configured, so no redirect page either.
	if _, err := os.Stat(filepath.Join(root, "index.html")); err == nil {
		t.Error("index.html written without a landing page")
	}
}

func TestWriteMetadataLandingRedirect(t *testing.T) {
	root := t.TempDir()
	cfg := metadataConfig()
	cfg.Global.LandingPage = "https://example.org/skylines/"
	if err := WriteMetadata(cfg, daydir.Layout{Root: root}, root); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatalf("index.html missing: %v", err)
	}
	if !strings.Contains(string(data), "https://example.org/skylines/") {
		t.Errorf("redirect target missing: %s", data)
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
global:
  work_dir: /tmp/lucarne
cameras:
  backyard:
    url: http://cam.local/snapshot.jpg
`

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cam, ok := cfg.Cameras["backyard"]
	if !ok {
		t.Fatal("camera backyard missing")
	}
	if cam.Name != "backyard" {
		t.Errorf("Name = %q, want backyard", cam.Name)
	}
	if cam.TimeoutS != 60 {
		t.Errorf("TimeoutS = %d, want 60", cam.TimeoutS)
	}
	if cam.SSIMSetpoint != 0.9 {
		t.Errorf("SSIMSetpoint = %v, want 0.9", cam.SSIMSetpoint)
	}
	if cam.IntervalMinS != 10 || cam.IntervalMaxS != 600 {
		t.Errorf("interval bounds = %v/%v, want 10/600", cam.IntervalMinS, cam.IntervalMaxS)
	}
	if cam.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %d, want 3", cam.FailureThreshold)
	}
	if cfg.PhotoRoot() != filepath.Join("/tmp/lucarne", "photos") {
		t.Errorf("PhotoRoot = %q", cfg.PhotoRoot())
	}
	if cfg.Timelapse.Daily.FileExtension != "webm" {
		t.Errorf("daily extension = %q, want webm", cfg.Timelapse.Daily.FileExtension)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, `
global:
  work_dir: /tmp/lucarne
  work_dirr: typo
cameras:
  cam:
    url: http://cam.local/snap.jpg
`))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error type = %T, want *ConfigError", err)
	}
}

func TestLoadRejectsAmbiguousSource(t *testing.T) {
	_, err := Load(writeConfig(t, `
cameras:
  cam:
    url: http://cam.local/snap.jpg
    local_command: capture.sh
`))
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Fatalf("err = %v, want exactly-one-source error", err)
	}

	_, err = Load(writeConfig(t, `
cameras:
  cam:
    timeout_s: 30
`))
	if err == nil {
		t.Fatal("expected error for camera without source")
	}
}

func TestLoadRejectsBadIntervalBounds(t *testing.T) {
	_, err := Load(writeConfig(t, `
cameras:
  cam:
    url: http://cam.local/snap.jpg
    interval_min_s: 100
    interval_max_s: 10
`))
	if err == nil {
		t.Fatal("expected error for min > max")
	}
}

func TestLoadRejectsBadRectangle(t *testing.T) {
	_, err := Load(writeConfig(t, `
cameras:
  cam:
    url: http://cam.local/snap.jpg
    sky_area: "0,0,100"
`))
	if err == nil {
		t.Fatal("expected error for malformed rectangle")
	}
}

func TestParseRect(t *testing.T) {
	r, err := ParseRect("10,20,110,220")
	if err != nil {
		t.Fatalf("ParseRect: %v", err)
	}
	if r.Min.X != 10 || r.Min.Y != 20 || r.Max.X != 110 || r.Max.Y != 220 {
		t.Errorf("rect = %v", r)
	}

	if r, err := ParseRect(""); err != nil || r != nil {
		t.Errorf("empty rect = %v, %v; want nil, nil", r, err)
	}

	if _, err := ParseRect("5,5,5,5"); err == nil {
		t.Error("expected error for empty area")
	}
}

func TestStoreReplace(t *testing.T) {
	first, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := NewStore(first)
	if store.Current() != first {
		t.Fatal("Current should return the seeded config")
	}

	second, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	old := store.Replace(second)
	if old != first || store.Current() != second {
		t.Error("Replace did not swap the snapshot")
	}
}

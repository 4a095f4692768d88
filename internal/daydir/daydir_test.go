package daydir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestImagePathUsesLocalDayAndZone(t *testing.T) {
	layout := Layout{Root: "/data/photos"}
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ts := time.Date(2026, 8, 28, 14, 30, 5, 0, loc)

	got := layout.ImagePath("backyard", ts)
	want := "/data/photos/backyard/2026-08-28/2026-08-28T14-30-05PDT.jpg"
	if got != want {
		t.Errorf("ImagePath = %q, want %q", got, want)
	}
}

func TestFilenamesSortChronologically(t *testing.T) {
	base := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	var prev string
	for i := 0; i < 100; i++ {
		name := base.Add(time.Duration(i) * 13 * time.Minute).Format(FilenameFormat)
		if prev != "" && !(prev < name) {
			t.Fatalf("%q should sort before %q", prev, name)
		}
		prev = name
	}
}

func TestWriteImageAndList(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	ts := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	path, err := layout.WriteImage("cam", ts, []byte("jpegdata"))
	if err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "jpegdata" {
		t.Fatalf("read back: %q, %v", data, err)
	}

	images, err := ListImages(layout.DayDir("cam", ts))
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(images) != 1 || images[0] != path {
		t.Errorf("ListImages = %v, want [%s]", images, path)
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.jpg")

	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Errorf("content = %q, want two", data)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestListDayDirsSkipsNonDateEntries(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	camDir := layout.CameraDir("cam")
	for _, d := range []string{"2026-08-27", "2026-08-26", "daylight", "not-a-date"} {
		if err := os.MkdirAll(filepath.Join(camDir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(camDir, "latest.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	days, err := layout.ListDayDirs("cam")
	if err != nil {
		t.Fatalf("ListDayDirs: %v", err)
	}
	if len(days) != 2 || days[0] != "2026-08-26" || days[1] != "2026-08-27" {
		t.Errorf("days = %v, want sorted date dirs only", days)
	}
}

func TestListDayDirsMissingCamera(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	days, err := layout.ListDayDirs("ghost")
	if err != nil || days != nil {
		t.Errorf("missing camera: %v, %v; want nil, nil", days, err)
	}
}

func TestArtifactPredicates(t *testing.T) {
	dir := t.TempDir()
	dayDir := filepath.Join(dir, "2026-08-27")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if HasDailyTimelapse(dayDir, "webm") || HasBand(dayDir) || IsArchived(dayDir) {
		t.Fatal("empty day dir should have no artifacts")
	}

	os.WriteFile(filepath.Join(dayDir, "2026-08-27.webm"), []byte("v"), 0o644)
	os.WriteFile(filepath.Join(dayDir, BandFile), []byte("p"), 0o644)
	if !HasDailyTimelapse(dayDir, "webm") || !HasBand(dayDir) {
		t.Error("artifacts not detected")
	}

	if err := MarkArchived(dayDir, time.Now()); err != nil {
		t.Fatalf("MarkArchived: %v", err)
	}
	if !IsArchived(dayDir) {
		t.Error("marker not detected")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o644)

	size, err := DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize: %v", err)
	}
	if size != 150 {
		t.Errorf("size = %d, want 150", size)
	}

	if size, err := DirSize(filepath.Join(dir, "missing")); err != nil || size != 0 {
		t.Errorf("missing dir: %d, %v; want 0, nil", size, err)
	}
}

func TestLockTableReturnsSameMutex(t *testing.T) {
	table := NewLockTable()
	a := table.Lock("cam", "2026-08-27")
	b := table.Lock("cam", "2026-08-27")
	if a != b {
		t.Error("same camera+day should share a mutex")
	}
	c := table.Lock("cam", "2026-08-28")
	if a == c {
		t.Error("different days should not share a mutex")
	}
}

package timelapse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lucarne/internal/config"
	"lucarne/internal/daydir"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

type encodeCall struct {
	frames int
	output string
}

// fakeEncoder records calls and drops a file at the output path so the
// day counts as encoded afterwards.
type fakeEncoder struct {
	mu    sync.Mutex
	calls []encodeCall
}

func (f *fakeEncoder) Encode(ctx context.Context, images []string, output string, opts Options) error {
	f.mu.Lock()
	f.calls = append(f.calls, encodeCall{frames: len(images), output: output})
	f.mu.Unlock()
	return os.WriteFile(output, []byte("video"), 0o644)
}

func (f *fakeEncoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func dailyConfig(cameras ...string) *config.Config {
	cfg := &config.Config{Cameras: map[string]*config.CameraConfig{}}
	for _, name := range cameras {
		cfg.Cameras[name] = &config.CameraConfig{Name: name, URL: "http://x/snap.jpg"}
	}
	cfg.Timelapse.Daily.Enabled = true
	cfg.Timelapse.Daily.FileExtension = "webm"
	cfg.Timelapse.Daily.Framerate = 60
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *fakeEncoder, daydir.Layout) {
	t.Helper()
	layout := daydir.Layout{Root: t.TempDir()}
	enc := &fakeEncoder{}
	svc := NewService(config.NewStore(cfg), layout, daydir.NewLockTable(), enc, NewQueue())
	svc.now = fixedNow
	return svc, enc, layout
}

func writeFrames(t *testing.T, layout daydir.Layout, camera, day string, n int) string {
	t.Helper()
	dayDir := filepath.Join(layout.CameraDir(camera), day)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%sT%02d-%02d-00UTC.jpg", day, i/60, i%60)
		if err := os.WriteFile(filepath.Join(dayDir, name), []byte("frame"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dayDir
}

func TestCatchUpEnqueuesUnencodedPastDays(t *testing.T) {
	svc, _, layout := newTestService(t, dailyConfig("cam"))

	writeFrames(t, layout, "cam", "2026-08-25", 3)
	encoded := writeFrames(t, layout, "cam", "2026-08-26", 3)
	os.WriteFile(filepath.Join(encoded, "2026-08-26.webm"), []byte("video"), 0o644)
	today := fixedNow().Format(daydir.DayFormat)
	writeFrames(t, layout, "cam", today, 3)

	svc.catchUp()

	items := svc.queue.Snapshot()
	if len(items) != 1 {
		t.Fatalf("queue = %v, want only the unencoded past day", items)
	}
	if items[0].Day != "2026-08-25" {
		t.Errorf("queued day = %s, want 2026-08-25", items[0].Day)
	}
}

func TestDrainQueueFinalizesPastDaysOnly(t *testing.T) {
	svc, enc, layout := newTestService(t, dailyConfig("cam"))
	var finalized []string
	svc.OnFinalized = func(camera, day string) {
		finalized = append(finalized, camera+"/"+day)
	}

	dayDir := writeFrames(t, layout, "cam", "2026-08-26", 3)
	today := fixedNow().Format(daydir.DayFormat)
	writeFrames(t, layout, "cam", today, 3)
	svc.queue.Enqueue("cam", "2026-08-26")
	svc.queue.Enqueue("cam", today)

	svc.drainQueue()

	if enc.callCount() != 1 {
		t.Fatalf("encode calls = %d, want 1", enc.callCount())
	}
	wantOutput := filepath.Join(dayDir, "2026-08-26.webm")
	if enc.calls[0].output != wantOutput || enc.calls[0].frames != 3 {
		t.Errorf("encode call = %+v, want 3 frames to %s", enc.calls[0], wantOutput)
	}
	if len(finalized) != 1 || finalized[0] != "cam/2026-08-26" {
		t.Errorf("finalized = %v", finalized)
	}

	// The finished day leaves the queue, today stays until it is over.
	items := svc.queue.Snapshot()
	if len(items) != 1 || items[0].Day != today {
		t.Errorf("queue after drain = %v, want only today", items)
	}
}

func TestDrainQueueSkipsSingleFrameDays(t *testing.T) {
	svc, enc, layout := newTestService(t, dailyConfig("cam"))
	writeFrames(t, layout, "cam", "2026-08-26", 1)
	svc.queue.Enqueue("cam", "2026-08-26")

	svc.drainQueue()

	if enc.callCount() != 0 {
		t.Errorf("encode calls = %d, want 0 for a single frame", enc.callCount())
	}
	if svc.queue.Len() != 0 {
		t.Error("single-frame day should still leave the queue")
	}
}

func TestDrainQueueDropsRemovedCameras(t *testing.T) {
	svc, enc, layout := newTestService(t, dailyConfig("cam"))
	writeFrames(t, layout, "gone", "2026-08-26", 3)
	svc.queue.Enqueue("gone", "2026-08-26")

	svc.drainQueue()

	if enc.callCount() != 0 {
		t.Errorf("encode calls = %d, want 0 for a removed camera", enc.callCount())
	}
	if svc.queue.Len() != 0 {
		t.Error("removed camera's days should be dequeued")
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	svc, enc, layout := newTestService(t, dailyConfig("cam"))
	var hookRuns int
	svc.OnFinalized = func(camera, day string) { hookRuns++ }

	dayDir := writeFrames(t, layout, "cam", "2026-08-26", 3)
	os.WriteFile(filepath.Join(dayDir, "2026-08-26.webm"), []byte("video"), 0o644)

	if err := svc.finalize(svc.store.Current(), "cam", "2026-08-26"); err != nil {
		t.Fatal(err)
	}
	if enc.callCount() != 0 {
		t.Errorf("encode calls = %d, want 0 for an already encoded day", enc.callCount())
	}
	if hookRuns != 1 {
		t.Errorf("hook runs = %d, want 1", hookRuns)
	}
}

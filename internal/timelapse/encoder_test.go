package timelapse

import "testing"

func TestScaleFilter(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxW, maxH    int
		want          string
	}{
		{"4k capped at max width", 5120, 1440, 3840, 2160, "scale=3840:-2"},
		{"ultrawide mid ladder", 3440, 1440, 3840, 2160, "scale=2560:-2"},
		{"ultrawide small", 2000, 800, 3840, 2160, "scale=1920:-2"},
		{"16:9 at max height", 3840, 2160, 3840, 2160, "scale=-2:2160"},
		{"1440p stays 1440p", 2560, 1440, 3840, 2160, "scale=-2:1440"},
		{"1080p stays 1080p", 1920, 1080, 3840, 2160, "scale=-2:1080"},
		{"720p stays 720p", 1280, 720, 3840, 2160, "scale=-2:720"},
		{"800p steps down to 720", 1424, 800, 3840, 2160, "scale=-2:720"},
		{"vga keeps its own size", 640, 480, 3840, 2160, "scale=-2:480"},
		{"odd source height is evened", 800, 601, 3840, 2160, "scale=-2:600"},
		{"small ultrawide keeps its width", 1000, 400, 3840, 2160, "scale=1000:-2"},
		{"constrained hardware cap", 3840, 2160, 1920, 1080, "scale=-2:1080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scaleFilter(tt.width, tt.height, tt.maxW, tt.maxH)
			if got != tt.want {
				t.Errorf("scaleFilter(%d,%d,%d,%d) = %q, want %q",
					tt.width, tt.height, tt.maxW, tt.maxH, got, tt.want)
			}
		})
	}
}

func TestInsertFormat(t *testing.T) {
	args := []string{"-i", "in.txt", "out.part"}
	got := insertFormat(args, "/photos/cam/2026-08-27/2026-08-27.webm")
	want := []string{"-i", "in.txt", "-f", "webm", "out.part"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	// Unknown extensions pass through untouched.
	got = insertFormat(args, "out.avi")
	if len(got) != len(args) {
		t.Errorf("unknown extension should not alter args: %v", got)
	}
}

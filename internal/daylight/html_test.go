package daylight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteIndexScalesMonthsByDayCount(t *testing.T) {
	cameraDir := t.TempDir()
	dir := filepath.Join(cameraDir, DaylightDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, ym := range []string{"2026-02.png", "2026-08.png"} {
		if err := os.WriteFile(filepath.Join(dir, ym), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := WriteIndex(cameraDir, "cam"); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	html, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	page := string(html)

	// Each month's image is sized by its own day count.
	if !strings.Contains(page, `src="2026-02.png" width="224"`) {
		t.Error("February (28 days) should be 224px wide")
	}
	if !strings.Contains(page, `src="2026-08.png" width="248"`) {
		t.Error("August (31 days) should be 248px wide")
	}

	// Area coordinates are in displayed pixels: day 2 spans columns
	// 8..16 over the full displayed height.
	if !strings.Contains(page, `coords="8,0,16,719"`) {
		t.Error("day 2 area not in displayed pixel coordinates")
	}
	if !strings.Contains(page, `href="../2026-02-02/"`) {
		t.Error("day link missing")
	}

	// Newest month sorts first.
	if strings.Index(page, "2026-08.png") > strings.Index(page, "2026-02.png") {
		t.Error("months should be newest first")
	}
}

func TestWriteIndexNoComposites(t *testing.T) {
	cameraDir := t.TempDir()
	if err := WriteIndex(cameraDir, "cam"); err != nil {
		t.Fatalf("WriteIndex without daylight dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cameraDir, DaylightDirName, "index.html")); err == nil {
		t.Error("index written despite no composites")
	}
}

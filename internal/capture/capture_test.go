package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lucarne/internal/config"
)

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeResult(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	data := jpegBytes(t)

	res, err := decodeResult(data, now)
	if err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if !res.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", res.Timestamp, now)
	}
	if res.Image.Bounds().Dx() != 8 {
		t.Errorf("decoded width = %d", res.Image.Bounds().Dx())
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("raw bytes must be preserved as received")
	}
}

func TestDecodeResultCorrupt(t *testing.T) {
	_, err := decodeResult([]byte("not an image"), time.Now())
	if !errors.Is(err, ErrCorruptImage) {
		t.Errorf("err = %v, want ErrCorruptImage", err)
	}
	if IsTransient(err) {
		t.Error("a corrupt image is not a transient failure")
	}
}

func TestHTTPSourceCapture(t *testing.T) {
	data := jpegBytes(t)
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write(data)
	}))
	defer srv.Close()

	cam := &config.CameraConfig{Name: "cam", URL: srv.URL}
	src := NewSource(cam, "lucarne/1.0")
	res, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Image == nil {
		t.Error("no decoded image")
	}
	if gotUA != "lucarne/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestHTTPSourceCacheBust(t *testing.T) {
	data := jpegBytes(t)
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		w.Write(data)
	}))
	defer srv.Close()

	cam := &config.CameraConfig{Name: "cam", URL: srv.URL, CacheBust: true}
	src := NewSource(cam, "")
	for i := 0; i < 2; i++ {
		if _, err := src.Capture(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(queries) != 2 || queries[0] == "" || queries[0] == queries[1] {
		t.Errorf("cache-bust queries = %v, want two distinct non-empty values", queries)
	}
}

func TestHTTPSourceStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cam := &config.CameraConfig{Name: "cam", URL: srv.URL}
	src := NewSource(cam, "")
	_, err := src.Capture(context.Background())
	if !IsTransient(err) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestCommandSourceCapture(t *testing.T) {
	// A command that emits a frame on stdout, like a libcamera wrapper.
	frame := filepath.Join(t.TempDir(), "frame.jpg")
	if err := os.WriteFile(frame, jpegBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	cam := &config.CameraConfig{Name: "cam", LocalCommand: "cat " + frame}
	src := NewSource(cam, "")
	res, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Image == nil {
		t.Error("no decoded image")
	}
}

func TestCommandSourceFailureIsTransient(t *testing.T) {
	src := &commandSource{command: "echo boom >&2; exit 3"}
	_, err := src.Capture(context.Background())
	if !IsTransient(err) {
		t.Errorf("err = %v, want transient", err)
	}
	if err != nil && !strings.Contains(err.Error(), "boom") {
		t.Errorf("stderr not surfaced: %v", err)
	}
}

package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"lucarne/internal/config"
	"lucarne/internal/exif"
)

// ErrCorruptImage marks a response that arrived but does not decode to
// an image. The frame is discarded and never written to disk.
var ErrCorruptImage = errors.New("capture: corrupt image")

// TransientError wraps failures worth retrying: timeouts, connection
// refusals, 5xx responses, non-zero command exits.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("capture: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable capture failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Result is one successfully decoded frame.
type Result struct {
	// Data is the raw encoded bytes as received, EXIF intact.
	Data      []byte
	Image     image.Image
	Timestamp time.Time
	Exposure  exif.Exposure
}

// Source produces frames for one camera. Implementations must honor
// ctx cancellation and deadline.
type Source interface {
	Capture(ctx context.Context) (*Result, error)
}

// NewSource builds the Source matching the camera's configuration.
// Config validation guarantees exactly one backend is set.
func NewSource(cam *config.CameraConfig, userAgent string) Source {
	if cam.LocalCommand != "" {
		return &commandSource{command: cam.LocalCommand}
	}
	return newHTTPSource(cam, userAgent)
}

// decodeResult validates and decodes raw bytes into a Result. The
// timestamp is taken here, once, so every downstream consumer of this
// frame agrees on when it was captured.
func decodeResult(data []byte, now time.Time) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	res := &Result{
		Data:      data,
		Image:     img,
		Timestamp: now,
	}
	// EXIF is optional; most IP cameras strip it.
	if exp, err := exif.Extract(data); err == nil {
		res.Exposure = exp
	}
	return res, nil
}

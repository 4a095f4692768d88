package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"lucarne/internal/config"
)

// Responses larger than this are rejected before decoding. No still
// frame is legitimately this big.
const maxBodyBytes = 64 << 20

// httpSource fetches a still frame from a camera's snapshot URL.
type httpSource struct {
	url       string
	userAgent string
	cacheBust bool
	client    *http.Client
	now       func() time.Time
}

func newHTTPSource(cam *config.CameraConfig, userAgent string) *httpSource {
	return &httpSource{
		url:       cam.URL,
		userAgent: userAgent,
		cacheBust: cam.CacheBust,
		client: &http.Client{
			// Per-request deadlines come from the caller's context;
			// this is a hard upper bound against a wedged transfer.
			Timeout: 2 * cam.Timeout(),
		},
		now: time.Now,
	}
}

func (s *httpSource) Capture(ctx context.Context) (*Result, error) {
	url := s.url
	if s.cacheBust {
		sep := "?"
		for _, c := range url {
			if c == '?' {
				sep = "&"
				break
			}
		}
		url += sep + "_=" + strconv.FormatInt(s.now().UnixNano(), 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransientError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	return decodeResult(data, s.now())
}

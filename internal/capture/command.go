package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// commandSource runs a local command and reads the encoded frame from
// its stdout. Used for directly attached cameras where a helper binary
// does the actual acquisition.
type commandSource struct {
	command string
	now     func() time.Time
}

func (s *commandSource) Capture(ctx context.Context) (*Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", s.command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &TransientError{Err: ctx.Err()}
		}
		return nil, &TransientError{Err: fmt.Errorf("%v: %s", err, truncate(stderr.Bytes(), 256))}
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return decodeResult(stdout.Bytes(), now())
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(bytes.TrimSpace(b))
}

package timelapse

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Options controls one encode.
type Options struct {
	Framerate int
	// ExtraArgs is the raw ffmpeg output options string from the
	// configuration, e.g. "-c:v libvpx-vp9 -b:v 0 -crf 30".
	ExtraArgs string
	TwoPass   bool
	// MaxWidth/MaxHeight clamp the output; sources are never upscaled.
	MaxWidth  int
	MaxHeight int
}

// Encoder turns an ordered image sequence into a video file. A partial
// output must never appear at the final path.
type Encoder interface {
	Encode(ctx context.Context, images []string, output string, opts Options) error
}

// FFmpegEncoder shells out to ffmpeg. TmpDir hosts the concat list and
// two-pass log files; point it at tmpfs on constrained hardware.
type FFmpegEncoder struct {
	TmpDir string
	// runner is swappable for tests.
	runner func(cmd *exec.Cmd) error
}

// NewFFmpegEncoder creates an encoder writing scratch files under
// tmpDir.
func NewFFmpegEncoder(tmpDir string) *FFmpegEncoder {
	return &FFmpegEncoder{
		TmpDir: tmpDir,
		runner: func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// scaleFilter picks the output size from the first frame's dimensions,
// stepping down a ladder of common resolutions and never exceeding the
// configured maximum. Sources smaller than every ladder step keep their
// own size; the output never exceeds the input. The -2 (and the evening
// of passed-through sizes) keeps dimensions even, which yuv420p
// requires.
func scaleFilter(width, height, maxW, maxH int) string {
	aspect := float64(width) / float64(height)
	if aspect > 16.0/9.0 {
		target := width
		switch {
		case width >= maxW:
			target = maxW
		case width >= 2560:
			target = 2560
		case width >= 1920:
			target = 1920
		}
		return fmt.Sprintf("scale=%d:-2", target-target%2)
	}
	target := height
	switch {
	case height >= maxH:
		target = maxH
	case height >= 1440:
		target = 1440
	case height >= 1080:
		target = 1080
	case height >= 720:
		target = 720
	}
	return fmt.Sprintf("scale=-2:%d", target-target%2)
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// Encode runs ffmpeg over the given frames. The output lands on a
// temporary name in the target directory and is renamed into place only
// after ffmpeg exits cleanly.
func (e *FFmpegEncoder) Encode(ctx context.Context, images []string, output string, opts Options) error {
	if len(images) == 0 {
		return fmt.Errorf("timelapse: no input images")
	}

	width, height, err := imageDimensions(images[0])
	if err != nil {
		return fmt.Errorf("timelapse: probe %s: %w", images[0], err)
	}
	maxW, maxH := opts.MaxWidth, opts.MaxHeight
	if maxW == 0 {
		maxW = 3840
	}
	if maxH == 0 {
		maxH = 2160
	}

	scratch, err := os.MkdirTemp(e.TmpDir, "encode-*")
	if err != nil {
		if mkErr := os.MkdirAll(e.TmpDir, 0o755); mkErr != nil {
			return mkErr
		}
		scratch, err = os.MkdirTemp(e.TmpDir, "encode-*")
		if err != nil {
			return err
		}
	}
	defer os.RemoveAll(scratch)

	listPath := filepath.Join(scratch, "frames.txt")
	var list strings.Builder
	for _, img := range images {
		abs, err := filepath.Abs(img)
		if err != nil {
			return err
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return err
	}

	absOutput, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	tmpOutput := filepath.Join(filepath.Dir(absOutput), "."+filepath.Base(absOutput)+".part")
	defer os.Remove(tmpOutput)

	base := []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "concat", "-safe", "0",
		"-r", strconv.Itoa(opts.Framerate),
		"-i", listPath,
		"-vf", scaleFilter(width, height, maxW, maxH) + ",format=yuv420p",
		"-y",
	}
	base = append(base, strings.Fields(opts.ExtraArgs)...)

	run := func(args []string) error {
		cmd := exec.CommandContext(ctx, "ffmpeg", args...)
		// Two-pass log files land in the scratch directory.
		cmd.Dir = scratch
		var stderr strings.Builder
		cmd.Stderr = &stderr
		log.Debugf("Running ffmpeg %s", strings.Join(args, " "))
		if err := e.runner(cmd); err != nil {
			return fmt.Errorf("ffmpeg: %w: %s", err, truncateStr(stderr.String(), 512))
		}
		return nil
	}

	if opts.TwoPass {
		pass1 := append(append([]string{}, base...), "-pass", "1", "-an", "-f", "null", os.DevNull)
		if err := run(pass1); err != nil {
			return err
		}
		pass2 := append(append([]string{}, base...), "-pass", "2", tmpOutput)
		// The extension is hidden by the .part name; tell ffmpeg the
		// container explicitly.
		pass2 = insertFormat(pass2, absOutput)
		if err := run(pass2); err != nil {
			return err
		}
	} else {
		args := insertFormat(append(append([]string{}, base...), tmpOutput), absOutput)
		if err := run(args); err != nil {
			return err
		}
	}

	info, err := os.Stat(tmpOutput)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("timelapse: ffmpeg produced no output for %s", output)
	}
	return os.Rename(tmpOutput, absOutput)
}

// insertFormat adds an -f flag matching the real output extension just
// before the trailing output path argument.
func insertFormat(args []string, realOutput string) []string {
	format := ""
	switch strings.TrimPrefix(filepath.Ext(realOutput), ".") {
	case "webm":
		format = "webm"
	case "mp4":
		format = "mp4"
	case "mkv":
		format = "matroska"
	}
	if format == "" {
		return args
	}
	out := args[len(args)-1]
	result := append(append([]string{}, args[:len(args)-1]...), "-f", format, out)
	return result
}

func truncateStr(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return strings.TrimSpace(s)
}

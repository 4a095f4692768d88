package postprocess

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"lucarne/internal/config"
)

// Step transforms one frame. Steps run in configuration order.
type Step interface {
	Apply(img image.Image, taken time.Time) (image.Image, error)
}

// Pipeline is a compiled, ordered list of steps for one camera.
type Pipeline []Step

// Apply runs the frame through every step. A step error aborts the
// pipeline; the caller decides whether to keep the unprocessed frame.
func (p Pipeline) Apply(img image.Image, taken time.Time) (image.Image, error) {
	var err error
	for i, step := range p {
		img, err = step.Apply(img, taken)
		if err != nil {
			return nil, fmt.Errorf("postprocess step %d: %w", i, err)
		}
	}
	return img, nil
}

// Build compiles the configured steps. Configuration validation has
// already checked the parameters, so errors here indicate a bug.
func Build(steps []config.PostprocessStep) (Pipeline, error) {
	p := make(Pipeline, 0, len(steps))
	for _, s := range steps {
		switch s.Kind {
		case "crop":
			r, err := config.ParseRect(s.Area)
			if err != nil {
				return nil, err
			}
			p = append(p, &cropStep{area: *r})
		case "resize":
			p = append(p, &resizeStep{width: s.Width, height: s.Height})
		case "awb":
			p = append(p, &awbStep{})
		case "timestamp":
			format := s.Format
			if format == "" {
				format = "2006-01-02 15:04:05"
			}
			pos := s.Position
			if pos == "" {
				pos = "bottom-left"
			}
			p = append(p, &timestampStep{format: format, position: pos})
		default:
			return nil, fmt.Errorf("unknown step type %q", s.Kind)
		}
	}
	return p, nil
}

type cropStep struct {
	area image.Rectangle
}

func (s *cropStep) Apply(img image.Image, _ time.Time) (image.Image, error) {
	r := s.area.Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop area %v outside frame %v", s.area, img.Bounds())
	}
	return imaging.Crop(img, r), nil
}

type resizeStep struct {
	width, height int
}

func (s *resizeStep) Apply(img image.Image, _ time.Time) (image.Image, error) {
	// Zero width or height preserves aspect ratio.
	return imaging.Resize(img, s.width, s.height, imaging.Lanczos), nil
}

// awbStep applies gray-world white balance: scale each channel so its
// mean matches the overall luminance mean.
type awbStep struct{}

func (s *awbStep) Apply(img image.Image, _ time.Time) (image.Image, error) {
	src := imaging.Clone(img)
	var sumR, sumG, sumB float64
	n := float64(len(src.Pix) / 4)
	if n == 0 {
		return img, nil
	}
	for i := 0; i < len(src.Pix); i += 4 {
		sumR += float64(src.Pix[i])
		sumG += float64(src.Pix[i+1])
		sumB += float64(src.Pix[i+2])
	}
	meanR, meanG, meanB := sumR/n, sumG/n, sumB/n
	gray := (meanR + meanG + meanB) / 3
	if meanR == 0 || meanG == 0 || meanB == 0 {
		return src, nil
	}
	kR, kG, kB := gray/meanR, gray/meanG, gray/meanB
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i] = clamp8(float64(src.Pix[i]) * kR)
		src.Pix[i+1] = clamp8(float64(src.Pix[i+1]) * kG)
		src.Pix[i+2] = clamp8(float64(src.Pix[i+2]) * kB)
	}
	return src, nil
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// timestampStep stamps the capture time into a corner of the frame.
type timestampStep struct {
	format   string
	position string
}

func (s *timestampStep) Apply(img image.Image, taken time.Time) (image.Image, error) {
	dst := imaging.Clone(img)
	label := taken.Format(s.format)

	face := basicfont.Face7x13
	textW := font.MeasureString(face, label).Ceil()
	textH := face.Metrics().Height.Ceil()

	const margin = 8
	b := dst.Bounds()
	var x, y int
	switch s.position {
	case "top-left":
		x, y = b.Min.X+margin, b.Min.Y+margin+textH
	case "top-right":
		x, y = b.Max.X-margin-textW, b.Min.Y+margin+textH
	case "bottom-right":
		x, y = b.Max.X-margin-textW, b.Max.Y-margin
	default: // bottom-left
		x, y = b.Min.X+margin, b.Max.Y-margin
	}

	// Shadow first for readability against bright sky.
	shadow := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x+1, y+1),
	}
	shadow.DrawString(label)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
	return dst, nil
}

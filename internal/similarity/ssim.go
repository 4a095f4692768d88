package similarity

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Images are reduced to this size before comparison. Scene change
// detection does not need full resolution, and the fixed size makes the
// score independent of camera resolution and of resolution mismatches
// between consecutive frames.
const sampleSize = 50

// SSIM stabilization constants for 8-bit dynamic range (K1=0.01,
// K2=0.03, L=255).
const (
	c1 = (0.01 * 255) * (0.01 * 255)
	c2 = (0.03 * 255) * (0.03 * 255)
)

// Compare returns a structural similarity score in [0,1] between two
// frames. 1 means identical. area restricts the comparison to a
// sub-rectangle of both frames; nil compares full frames. A nil image
// yields 0, maximally dissimilar, so a camera that just produced its
// first frame captures again soon.
func Compare(a, b image.Image, area *image.Rectangle) float64 {
	if a == nil || b == nil {
		return 0
	}
	ga := graySample(a, area)
	gb := graySample(b, area)
	if ga == nil || gb == nil {
		return 0
	}
	return ssim(ga, gb)
}

// graySample crops to area if given, then downsamples to a fixed-size
// grayscale patch.
func graySample(img image.Image, area *image.Rectangle) *image.Gray {
	if area != nil {
		r := area.Intersect(img.Bounds())
		if r.Empty() {
			return nil
		}
		img = imaging.Crop(img, r)
	}
	small := imaging.Resize(img, sampleSize, sampleSize, imaging.Box)
	gray := image.NewGray(small.Bounds())
	draw.Draw(gray, gray.Bounds(), small, small.Bounds().Min, draw.Src)
	return gray
}

// ssim computes the global (single-window) SSIM index over two
// equal-sized grayscale images.
func ssim(a, b *image.Gray) float64 {
	n := float64(sampleSize * sampleSize)

	var sumA, sumB float64
	for i := range a.Pix {
		sumA += float64(a.Pix[i])
		sumB += float64(b.Pix[i])
	}
	muA := sumA / n
	muB := sumB / n

	var varA, varB, cov float64
	for i := range a.Pix {
		da := float64(a.Pix[i]) - muA
		db := float64(b.Pix[i]) - muB
		varA += da * da
		varB += db * db
		cov += da * db
	}
	varA /= n - 1
	varB /= n - 1
	cov /= n - 1

	num := (2*muA*muB + c1) * (2*cov + c2)
	den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
	s := num / den
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

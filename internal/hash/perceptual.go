package hash

import (
	"fmt"
	"image"

	"imagesweep/internal/models"
)

// Luma weights for brightness, see https://stackoverflow.com/a/596243
const (
	redWeight   = 0.299
	greenWeight = 0.587
	blueWeight  = 0.114
)

// Brightness returns the alpha-weighted luma of a non-premultiplied pixel
func Brightness(r, g, b, a uint8) float64 {
	luma := redWeight*float64(r) + greenWeight*float64(g) + blueWeight*float64(b)
	return luma * (float64(a) / 255)
}

// PerceptualFingerprint resizes img to the given width, keeping its aspect
// ratio, and returns the brightness bitmap of the result.
func PerceptualFingerprint(img *image.NRGBA, width int, resizer Resizer) (models.Fingerprint, error) {
	thumb, err := resizer.Resize(img, width)
	if err != nil {
		return models.Fingerprint{}, err
	}
	return BrightnessHash(thumb)
}

// BrightnessHash emits one character per pixel in raster order: '1' when the
// pixel is brighter than the mean of the whole buffer, '0' otherwise.
func BrightnessHash(img *image.NRGBA) (models.Fingerprint, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	n := width * height
	if n == 0 {
		return models.Fingerprint{}, fmt.Errorf("%w: empty thumbnail", ErrHashCompute)
	}

	// The mean must cover every pixel before any bit is decided.
	values := make([]float64, 0, n)
	var total float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+4]
			v := Brightness(px[0], px[1], px[2], px[3])
			values = append(values, v)
			total += v
		}
	}
	mean := total / float64(n)

	bits := make([]byte, n)
	for i, v := range values {
		if v > mean {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}

	return models.Fingerprint{
		Kind:   models.KindPerceptual,
		Hash:   string(bits),
		Width:  width,
		Height: height,
	}, nil
}

// IsSimilar reports whether two perceptual fingerprints match at the given
// similarity in [0, 1]. Shapes are compared first: aspect ratios must agree
// within a margin of 1-similarity, checked in both directions so that the
// result does not depend on argument order. The bit match ratio must then
// reach similarity.
func IsSimilar(a, b models.Fingerprint, similarity float64) bool {
	if a.Kind != models.KindPerceptual || b.Kind != models.KindPerceptual {
		return false
	}
	if len(a.Hash) != len(b.Hash) || len(a.Hash) == 0 {
		return false
	}

	margin := 1 - similarity
	if !aspectWithin(a.AspectRatio(), b.AspectRatio(), margin) ||
		!aspectWithin(b.AspectRatio(), a.AspectRatio(), margin) {
		return false
	}

	matches := 0
	for i := 0; i < len(a.Hash); i++ {
		if a.Hash[i] == b.Hash[i] {
			matches++
		}
	}
	return float64(matches)/float64(len(a.Hash)) >= similarity
}

func aspectWithin(x, y, margin float64) bool {
	return x <= y*(1+margin) && x >= y*(1-margin)
}

// PerceptuallyClose compares the thumbnails of two records
func PerceptuallyClose(x, y models.ImageRecord, similarity float64) bool {
	return IsSimilar(x.Thumbnail, y.Thumbnail, similarity)
}

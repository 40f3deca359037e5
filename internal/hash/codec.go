package hash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageDecoder decodes any registered image format into a non-premultiplied
// RGBA buffer anchored at the origin.
type ImageDecoder struct{}

// Decode turns raw bytes into pixels. Failures wrap ErrDecode.
func (ImageDecoder) Decode(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	return toNRGBA(img), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// NRGBAResizer scales images to a target width with nfnt/resize
type NRGBAResizer struct {
	Interpolation resize.InterpolationFunction
}

// DefaultResizer uses bilinear interpolation
var DefaultResizer = NRGBAResizer{Interpolation: resize.Bilinear}

// Resize scales img to width pixels wide. The height follows from the
// source aspect ratio and is never less than one pixel.
func (r NRGBAResizer) Resize(img *image.NRGBA, width int) (*image.NRGBA, error) {
	b := img.Bounds()
	if width <= 0 {
		return nil, fmt.Errorf("%w: thumbnail width %d", ErrHashCompute, width)
	}
	if b.Empty() {
		return nil, fmt.Errorf("%w: cannot resize empty image", ErrHashCompute)
	}

	height := int(math.Round(float64(width) * float64(b.Dy()) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}

	return toNRGBA(resize.Resize(uint(width), uint(height), img, r.Interpolation)), nil
}

package hash

import (
	"context"
	"fmt"
	"image"
	"time"

	"imagesweep/internal/models"
)

// FileSource reads files and their metadata
type FileSource interface {
	Exists(path string) bool
	ReadFile(path string) ([]byte, error)
	CreationTime(path string) (time.Time, error)
}

// Decoder turns raw bytes into a pixel buffer
type Decoder interface {
	Decode(data []byte) (*image.NRGBA, error)
}

// Resizer scales a pixel buffer to a target width, preserving aspect ratio
type Resizer interface {
	Resize(img *image.NRGBA, width int) (*image.NRGBA, error)
}

// Hasher builds ImageRecords from files
type Hasher struct {
	files   FileSource
	decoder Decoder
	resizer Resizer
}

// HasherOption configures a Hasher
type HasherOption func(*Hasher)

// WithDecoder replaces the image codec
func WithDecoder(d Decoder) HasherOption {
	return func(h *Hasher) {
		if d != nil {
			h.decoder = d
		}
	}
}

// WithResizer replaces the thumbnail resizer
func WithResizer(r Resizer) HasherOption {
	return func(h *Hasher) {
		if r != nil {
			h.resizer = r
		}
	}
}

// NewHasher creates a Hasher reading from files
func NewHasher(files FileSource, opts ...HasherOption) *Hasher {
	h := &Hasher{
		files:   files,
		decoder: ImageDecoder{},
		resizer: DefaultResizer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Exists reports whether path currently exists
func (h *Hasher) Exists(path string) bool {
	return h.files.Exists(path)
}

// Record reads, decodes and fingerprints the image at path with a thumbnail
// of the given width. Decode failures are returned as *DecodeError.
func (h *Hasher) Record(ctx context.Context, path string, width int) (models.ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.ImageRecord{}, err
	}

	created, err := h.files.CreationTime(path)
	if err != nil {
		return models.ImageRecord{}, fmt.Errorf("failed to read creation time of %s: %w", path, err)
	}

	data, err := h.files.ReadFile(path)
	if err != nil {
		return models.ImageRecord{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	img, err := h.decoder.Decode(data)
	if err != nil {
		return models.ImageRecord{}, &DecodeError{Path: path, Err: err}
	}

	bounds := img.Bounds()
	original := ContentFingerprint(data, bounds.Dx(), bounds.Dy())

	thumbnail, err := PerceptualFingerprint(img, width, h.resizer)
	if err != nil {
		return models.ImageRecord{}, fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}

	return models.ImageRecord{
		SourceID:  path,
		CreatedAt: created.UTC(),
		Original:  original,
		Thumbnail: thumbnail,
	}, nil
}

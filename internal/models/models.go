package models

import (
	"fmt"
	"time"
)

// Kind identifies the hashing scheme that produced a Fingerprint
type Kind int

const (
	// KindExact is a digest of the raw file bytes
	KindExact Kind = iota + 1
	// KindPerceptual is an average-brightness bitmap of a thumbnail
	KindPerceptual
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindPerceptual:
		return "perceptual"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fingerprint is an immutable hash of an image together with the
// dimensions of the pixels it was computed from.
type Fingerprint struct {
	Kind   Kind   `json:"kind"`
	Hash   string `json:"hash"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// AspectRatio returns width divided by height, or 0 for a degenerate fingerprint
func (f Fingerprint) AspectRatio() float64 {
	if f.Height == 0 {
		return 0
	}
	return float64(f.Width) / float64(f.Height)
}

// ImageRecord bundles a source with its creation time and both fingerprints
type ImageRecord struct {
	SourceID  string      `json:"source_id"`
	CreatedAt time.Time   `json:"created_at"`
	Original  Fingerprint `json:"original"`  // KindExact, full-size dimensions
	Thumbnail Fingerprint `json:"thumbnail"` // KindPerceptual, resized dimensions
}

func (r ImageRecord) String() string {
	return fmt.Sprintf("%s (%dx%d, created %s)",
		r.SourceID, r.Original.Width, r.Original.Height, r.CreatedAt.Format(time.RFC3339))
}

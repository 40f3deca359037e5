// Package dedup eliminates duplicate images from an index of fingerprinted
// records.
package dedup

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/sirupsen/logrus"

	"imagesweep/internal/hash"
	"imagesweep/internal/index"
	"imagesweep/internal/models"
)

const (
	// DefaultSimilarity requires identical perceptual hashes
	DefaultSimilarity = 1.0
	// DefaultMaxVerifySize caps the thumbnail width used to confirm a
	// perceptual match
	DefaultMaxVerifySize = 512
)

// Fingerprinter recomputes a record at a given thumbnail width
type Fingerprinter interface {
	Record(ctx context.Context, path string, width int) (models.ImageRecord, error)
}

// Scanner walks a snapshot of an index and discards the newer member of
// every duplicate pair it confirms.
type Scanner struct {
	index      *index.Index
	fp         Fingerprinter
	similarity float64
	maxVerify  int
	progress   func(models.ImageRecord)
	log        logrus.FieldLogger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithSimilarity sets the perceptual match threshold in [0, 1]
func WithSimilarity(s float64) Option {
	return func(sc *Scanner) {
		if s >= 0 && s <= 1 {
			sc.similarity = s
		}
	}
}

// WithProgress sets a callback invoked once per outer step of a scan
func WithProgress(fn func(models.ImageRecord)) Option {
	return func(sc *Scanner) {
		sc.progress = fn
	}
}

// WithMaxVerifySize caps the width used to re-fingerprint candidate pairs
func WithMaxVerifySize(n int) Option {
	return func(sc *Scanner) {
		if n > 0 {
			sc.maxVerify = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(sc *Scanner) {
		if l != nil {
			sc.log = l
		}
	}
}

// NewScanner creates a Scanner over idx. fp is used to re-fingerprint
// perceptual candidates at a higher resolution before they are discarded.
func NewScanner(idx *index.Index, fp Fingerprinter, opts ...Option) *Scanner {
	s := &Scanner{
		index:      idx,
		fp:         fp,
		similarity: DefaultSimilarity,
		maxVerify:  DefaultMaxVerifySize,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Similarity returns the configured threshold
func (s *Scanner) Similarity() float64 {
	return s.similarity
}

// Find yields every discarded record in discovery order. The index is
// snapshotted when iteration starts; discarded records are deleted from it
// before they are yielded. A failed verification is yielded as the final
// error and ends the scan.
//
// Scanning runs from the last record of the snapshot backwards. Each record
// in turn is compared with every record below it. When a pair is confirmed,
// the one created later is removed. Removing the lower record shifts the
// current one down by a slot; removing the current record ends its step.
func (s *Scanner) Find(ctx context.Context) iter.Seq2[models.ImageRecord, error] {
	return func(yield func(models.ImageRecord, error) bool) {
		list := s.index.Snapshot()
		s.log.WithField("size", len(list)).Debug("scanning for duplicates")

		discarded := 0
		defer func() {
			s.log.WithFields(logrus.Fields{
				"kept":      len(list),
				"discarded": discarded,
			}).Info("duplicate scan finished")
		}()

		for i := len(list) - 1; i > 0; i-- {
			later := list[i]

			for j := i - 1; j >= 0; j-- {
				earlier := list[j]

				same, err := s.duplicates(ctx, earlier, later)
				if err != nil {
					yield(models.ImageRecord{}, err)
					return
				}
				if !same {
					continue
				}

				var drop models.ImageRecord
				laterDropped := later.CreatedAt.After(earlier.CreatedAt)
				if laterDropped {
					drop = later
					list = slices.Delete(list, i, i+1)
				} else {
					drop = earlier
					list = slices.Delete(list, j, j+1)
					i--
				}
				s.index.Delete(drop.SourceID)
				discarded++

				s.log.WithFields(logrus.Fields{
					"path":     drop.SourceID,
					"original": survivor(drop, earlier, later).SourceID,
				}).Info("duplicate found")

				if !yield(drop, nil) {
					return
				}
				if laterDropped {
					break
				}
			}

			if s.progress != nil {
				s.progress(later)
			}
		}
	}
}

func survivor(drop, a, b models.ImageRecord) models.ImageRecord {
	if drop.SourceID == a.SourceID {
		return b
	}
	return a
}

// duplicates decides whether earlier and later are the same image. Equal
// content is conclusive. A perceptual match is only trusted after both
// files are fingerprinted again at a larger size and still match.
func (s *Scanner) duplicates(ctx context.Context, earlier, later models.ImageRecord) (bool, error) {
	if hash.SameContent(earlier, later) {
		return true, nil
	}
	if !hash.PerceptuallyClose(earlier, later, s.similarity) {
		return false, nil
	}

	size := s.verifySize(earlier, later)
	log := s.log.WithFields(logrus.Fields{
		"path":  later.SourceID,
		"other": earlier.SourceID,
		"size":  size,
	})
	log.Debug("verifying perceptual match")

	e2, err := s.fp.Record(ctx, earlier.SourceID, size)
	if err != nil {
		return false, fmt.Errorf("failed to verify %s: %w", earlier.SourceID, err)
	}
	l2, err := s.fp.Record(ctx, later.SourceID, size)
	if err != nil {
		return false, fmt.Errorf("failed to verify %s: %w", later.SourceID, err)
	}

	if !hash.PerceptuallyClose(e2, l2, s.similarity) {
		log.Debug("perceptual match rejected at higher resolution")
		return false, nil
	}
	return true, nil
}

func (s *Scanner) verifySize(a, b models.ImageRecord) int {
	size := min(s.maxVerify,
		a.Original.Width, a.Original.Height,
		b.Original.Width, b.Original.Height)
	return max(size, 1)
}

// Package config holds the settings of a duplicate-removal run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid configuration")

// DefaultDestination is the folder, relative to the scanned folder, that
// receives duplicates when no destination is given
const DefaultDestination = "Duplicates"

// Config controls ingestion, comparison and what happens to duplicates
type Config struct {
	ImagesPerTask int     // paths handled by one ingestion worker
	ThumbnailSize int     // perceptual thumbnail width in pixels
	Similarity    float64 // fraction of matching bits, in [0, 1]
	Workers       int     // concurrent ingestion workers, 0 for one per chunk
	PreferExif    bool    // use the EXIF capture time when present

	Recursive   bool
	Destination string
	DryRun      bool

	JournalPath string
	NoJournal   bool
}

// Default returns the settings used when no flags are given
func Default() Config {
	return Config{
		ImagesPerTask: 500,
		ThumbnailSize: 25,
		Similarity:    1.0,
		JournalPath:   DefaultJournalPath(),
	}
}

// DefaultJournalPath returns ~/.imagesweep/journal.db
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".imagesweep", "journal.db")
}

// Validate checks value ranges
func (c Config) Validate() error {
	if c.ImagesPerTask < 1 {
		return fmt.Errorf("%w: images per task must be at least 1, got %d", ErrInvalid, c.ImagesPerTask)
	}
	if c.ThumbnailSize < 1 {
		return fmt.Errorf("%w: thumbnail size must be at least 1, got %d", ErrInvalid, c.ThumbnailSize)
	}
	if c.Similarity < 0 || c.Similarity > 1 {
		return fmt.Errorf("%w: similarity must be between 0 and 1, got %g", ErrInvalid, c.Similarity)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Workers)
	}
	if !c.NoJournal && !c.DryRun && c.JournalPath == "" {
		return fmt.Errorf("%w: journal path is empty", ErrInvalid)
	}
	return nil
}

// DestinationFor resolves where duplicates from source are moved
func (c Config) DestinationFor(source string) string {
	if c.Destination == "" {
		return filepath.Join(source, DefaultDestination)
	}
	return c.Destination
}

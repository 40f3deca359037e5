package fileutil

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// OS reads images from the local filesystem
type OS struct {
	// PreferExif makes CreationTime return the EXIF capture time when the
	// file carries one.
	PreferExif bool
}

// Exists reports whether path names an existing regular file
func (o OS) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadFile returns the full content of path
func (o OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// CreationTime returns when the file was created, in UTC. Platforms or
// filesystems that do not record a birth time report the modification time.
func (o OS) CreationTime(path string) (time.Time, error) {
	if o.PreferExif {
		if t, ok := exifTime(path); ok {
			return t.UTC(), nil
		}
	}

	t, err := birthTime(path)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// exifTime reads DateTimeOriginal (or DateTime) from the file's EXIF block
func exifTime(path string) (time.Time, bool) {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return time.Time{}, false
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

//go:build !linux && !darwin && !windows

package fileutil

import (
	"os"
	"time"
)

// birthTime falls back to the modification time where no birth time is exposed
func birthTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

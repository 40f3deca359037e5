//go:build windows

package fileutil

import (
	"os"
	"syscall"
	"time"
)

func birthTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	if d, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, d.CreationTime.Nanoseconds()), nil
	}
	return info.ModTime(), nil
}

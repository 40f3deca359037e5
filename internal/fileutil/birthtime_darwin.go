//go:build darwin

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
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Birthtimespec.Unix()), nil
	}
	return info.ModTime(), nil
}

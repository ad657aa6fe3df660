//go:build windows

package discover

import (
	"io/fs"
	"syscall"
	"time"
)

func fileTimes(_ string, info fs.FileInfo) (atime, ctime time.Time) {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return info.ModTime(), info.ModTime()
	}
	return time.Unix(0, data.LastAccessTime.Nanoseconds()),
		time.Unix(0, data.CreationTime.Nanoseconds())
}

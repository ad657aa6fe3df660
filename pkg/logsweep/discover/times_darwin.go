//go:build darwin

package discover

import (
	"io/fs"
	"syscall"
	"time"
)

// fileTimes returns the access and birth times from the stat structure.
func fileTimes(_ string, info fs.FileInfo) (atime, ctime time.Time) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime(), info.ModTime()
	}
	return time.Unix(st.Atimespec.Unix()), time.Unix(st.Birthtimespec.Unix())
}

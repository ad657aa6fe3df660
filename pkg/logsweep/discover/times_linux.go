//go:build linux

package discover

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// fileTimes returns the access and creation times of path. statx is used
// for the birth time; filesystems that do not record one fall back to
// the modification time.
func fileTimes(path string, info fs.FileInfo) (atime, ctime time.Time) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW,
		unix.STATX_ATIME|unix.STATX_BTIME, &stx)
	if err != nil {
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			return time.Unix(st.Atim.Unix()), info.ModTime()
		}
		return info.ModTime(), info.ModTime()
	}

	atime = time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))
	ctime = info.ModTime()
	if stx.Mask&unix.STATX_BTIME != 0 {
		ctime = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}
	return atime, ctime
}

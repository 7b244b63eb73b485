//go:build linux

package fs

import (
	"io/fs"
	"syscall"
	"time"
)

// creationTime approximates a file's creation time. Linux stat does not
// expose birth time, so the inode change time is used.
func creationTime(info fs.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}

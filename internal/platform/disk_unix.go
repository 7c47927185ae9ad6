//go:build !windows

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// FreeDiskSpace returns the free bytes available to the process on the
// filesystem holding path, or 0 when it cannot be determined.
func FreeDiskSpace(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil || !stat.IsDir() {
		return 0
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0
	}

	return int64(fs.Bavail) * int64(fs.Bsize)
}

//go:build !windows

package database

import (
	"os"
	"syscall"
)

// statDevIno extracts the (device, inode) pair used for the walker's
// symlink-loop detection (spec.md §4.1). On platforms without this
// concept (Windows) the policy is vacuous per spec.md §4.1.
func statDevIno(info os.FileInfo) (dev, ino uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Dev), uint64(st.Ino)
}

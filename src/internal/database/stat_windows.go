//go:build windows

package database

import "os"

// statDevIno is vacuous on Windows (spec.md §4.1: "on platforms without
// symlinks the policy is vacuous").
func statDevIno(info os.FileInfo) (dev, ino uint64) { return 0, 0 }

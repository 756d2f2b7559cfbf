//go:build !windows

package harmonica

import (
	"os"
	"syscall"
)

// tryLockFile takes an exclusive flock() without blocking.
func tryLockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

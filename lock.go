package harmonica

import (
	"fmt"
	"os"
	"time"
)

// Locker provides mutual exclusion between processes sharing a cache.
type Locker interface {
	// Lock blocks until the lock is held or the timeout expires.
	Lock() error

	// Unlock releases the lock. Safe to call multiple times.
	Unlock() error
}

// fileLock implements Locker on top of an OS-level lock on a lock file.
type fileLock struct {
	file    *os.File
	timeout time.Duration
	locked  bool
}

// newFileLock opens or creates the lock file at path.
func newFileLock(path string, timeout time.Duration) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return &fileLock{file: file, timeout: timeout}, nil
}

// Lock polls the non-blocking OS lock with backoff until the timeout.
func (l *fileLock) Lock() error {
	if l.locked {
		return nil
	}
	if l.file == nil {
		return fmt.Errorf("lock file closed")
	}

	deadline := time.Now().Add(l.timeout)
	wait := 10 * time.Millisecond
	for {
		if err := tryLockFile(l.file); err == nil {
			l.locked = true
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock timeout after %v", l.timeout)
		}
		time.Sleep(wait)
		if wait < 250*time.Millisecond {
			wait *= 2
		}
	}
}

// Unlock releases the OS lock and closes the lock file.
func (l *fileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	var err error
	if l.locked {
		err = unlockFile(l.file)
		l.locked = false
	}
	l.file.Close()
	l.file = nil
	return err
}

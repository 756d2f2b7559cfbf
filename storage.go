package harmonica

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultLockTimeout is the default timeout for acquiring the download lock.
const DefaultLockTimeout = 10 * time.Minute

// envDataDir overrides Config.DataDir when set.
const envDataDir = "HARMONICA_DATA_DIR"

// appName names the per-user data directory.
const appName = "harmonica"

// downloadLockName is the per-model lock file shared by downloads and removal.
const downloadLockName = ".download.lock"

// storageInterface defines operations on the managed cache and the optional
// pre-existing tree. Implemented by *storage.
type storageInterface interface {
	// modelDir returns the cache directory of a model.
	modelDir(model string) string

	// cachedPath returns the cache location of a resource.
	cachedPath(model, resource string) string

	// preExistingPath returns the read-only location of a resource, or ""
	// when no pre-existing tree is configured.
	preExistingPath(model, resource string) string

	// exists reports whether path is an existing regular file.
	exists(path string) bool

	// ensureDir creates a directory and all parent directories if they don't exist.
	ensureDir(path string) error

	// writeStream copies r to path through a temporary file and rename.
	writeStream(path string, r io.Reader) (int64, error)

	// removeModelDir removes a model's cache directory and all its contents.
	removeModelDir(model string) error

	// lockModel takes the cross-process download lock of a model.
	lockModel(model string) (Locker, error)
}

// storage handles all local filesystem operations.
type storage struct {
	// baseDir is the root of the managed cache.
	baseDir string

	// preExistingDir is the optional read-only tree. Empty disables it.
	preExistingDir string

	// lockTimeout is the maximum duration to wait for lock acquisition.
	lockTimeout time.Duration
}

var _ storageInterface = (*storage)(nil)

// newStorage creates a new storage instance for the given configuration.
// The base directory is created lazily on first download.
func newStorage(cfg Config) (*storage, error) {
	var baseDir string

	// Priority: env var > Config.DataDir > platform default
	if envDir := os.Getenv(envDataDir); envDir != "" {
		baseDir = envDir
	} else if cfg.DataDir != "" {
		baseDir = cfg.DataDir
	} else {
		defaultDir, err := getDefaultDataDir(appName)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to get default data dir: %v", ErrStorage, err)
		}
		baseDir = defaultDir
	}

	return &storage{
		baseDir:        baseDir,
		preExistingDir: cfg.PreExistingDataDir,
		lockTimeout:    DefaultLockTimeout,
	}, nil
}

func (s *storage) modelDir(model string) string {
	return filepath.Join(s.baseDir, model)
}

func (s *storage) cachedPath(model, resource string) string {
	return filepath.Join(s.baseDir, model, filepath.FromSlash(resource))
}

func (s *storage) preExistingPath(model, resource string) string {
	if s.preExistingDir == "" {
		return ""
	}
	return filepath.Join(s.preExistingDir, model, filepath.FromSlash(resource))
}

func (s *storage) exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (s *storage) ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrStorage, path, err)
	}
	return nil
}

// writeStream writes to a temp file next to path and renames it into place,
// so partially written resources are never mistaken for cached ones.
func (s *storage) writeStream(path string, r io.Reader) (int64, error) {
	if err := s.ensureDir(filepath.Dir(path)); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create temp file: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpName)
		return n, copyErr
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("%w: failed to write %s: %v", ErrStorage, path, closeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) // cleanup on failure
		return n, fmt.Errorf("%w: failed to rename temp file: %v", ErrStorage, err)
	}
	return n, nil
}

// removeModelDir deletes every cached resource of model while holding the
// model's download lock, so a download in another process is never cut
// short. Only the lock file is left behind. A missing directory is not an
// error.
func (s *storage) removeModelDir(model string) error {
	dir := s.modelDir(model)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	lock, err := s.lockModel(model)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: failed to read model directory: %v", ErrStorage, err)
	}
	for _, e := range entries {
		if e.Name() == downloadLockName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("%w: failed to remove model directory: %v", ErrStorage, err)
		}
	}
	return nil
}

func (s *storage) lockModel(model string) (Locker, error) {
	dir := s.modelDir(model)
	if err := s.ensureDir(dir); err != nil {
		return nil, err
	}
	lock, err := newFileLock(filepath.Join(dir, downloadLockName), s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create download lock: %v", ErrStorage, err)
	}
	if err := lock.Lock(); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("%w: another process is downloading %s: %v", ErrStorage, model, err)
	}
	return lock, nil
}

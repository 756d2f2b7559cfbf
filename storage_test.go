package harmonica

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewStorageWithDataDir(t *testing.T) {
	t.Setenv(envDataDir, "")
	tmpDir := t.TempDir()

	s, err := newStorage(Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("newStorage() error = %v", err)
	}

	if s.baseDir != tmpDir {
		t.Errorf("baseDir = %q, want %q", s.baseDir, tmpDir)
	}
	if s.lockTimeout != DefaultLockTimeout {
		t.Errorf("lockTimeout = %v, want %v", s.lockTimeout, DefaultLockTimeout)
	}
}

func TestNewStorageWithEnvVar(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(envDataDir, tmpDir)

	s, err := newStorage(Config{DataDir: "/should/be/ignored"})
	if err != nil {
		t.Fatalf("newStorage() error = %v", err)
	}

	if s.baseDir != tmpDir {
		t.Errorf("baseDir = %q, want %q (env var should take priority)", s.baseDir, tmpDir)
	}
}

func TestNewStorageDefaultDir(t *testing.T) {
	t.Setenv(envDataDir, "")

	s, err := newStorage(Config{})
	if err != nil {
		t.Fatalf("newStorage() error = %v", err)
	}
	if !strings.Contains(s.baseDir, appName) {
		t.Errorf("baseDir = %q, want a path containing %q", s.baseDir, appName)
	}
}

func TestStoragePaths(t *testing.T) {
	s := &storage{baseDir: "/cache", preExistingDir: "/atlases"}

	if got, want := s.modelDir("tpxo8"), filepath.Join("/cache", "tpxo8"); got != want {
		t.Errorf("modelDir() = %q, want %q", got, want)
	}
	if got, want := s.cachedPath("tpxo9", "tpxo9_netcdf/h_tpxo9.v1.nc"), filepath.Join("/cache", "tpxo9", "tpxo9_netcdf", "h_tpxo9.v1.nc"); got != want {
		t.Errorf("cachedPath() = %q, want %q", got, want)
	}
	if got, want := s.preExistingPath("tpxo8", "hf.m2_tpxo8_atlas_30c_v1.nc"), filepath.Join("/atlases", "tpxo8", "hf.m2_tpxo8_atlas_30c_v1.nc"); got != want {
		t.Errorf("preExistingPath() = %q, want %q", got, want)
	}

	s.preExistingDir = ""
	if got := s.preExistingPath("tpxo8", "a.nc"); got != "" {
		t.Errorf("preExistingPath() without tree = %q, want empty", got)
	}
}

func TestStorageExists(t *testing.T) {
	tmpDir := t.TempDir()
	s := &storage{baseDir: tmpDir}

	file := filepath.Join(tmpDir, "a.nc")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"regular file", file, true},
		{"directory", tmpDir, false},
		{"missing", filepath.Join(tmpDir, "missing.nc"), false},
		{"empty path", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.exists(tt.path); got != tt.want {
				t.Errorf("exists(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestWriteStream(t *testing.T) {
	tmpDir := t.TempDir()
	s := &storage{baseDir: tmpDir}

	testFile := filepath.Join(tmpDir, "nested", "dir", "test.nc")
	testData := []byte("hello world")

	n, err := s.writeStream(testFile, bytes.NewReader(testData))
	if err != nil {
		t.Fatalf("writeStream() error = %v", err)
	}
	if n != int64(len(testData)) {
		t.Errorf("writeStream() wrote %d bytes, want %d", n, len(testData))
	}

	got, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, testData) {
		t.Errorf("file content = %q, want %q", got, testData)
	}

	entries, _ := os.ReadDir(filepath.Dir(testFile))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the target file", len(entries))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestWriteStreamFailureLeavesNothing(t *testing.T) {
	tmpDir := t.TempDir()
	s := &storage{baseDir: tmpDir}
	testFile := filepath.Join(tmpDir, "partial.nc")

	_, err := s.writeStream(testFile, io.MultiReader(strings.NewReader("head"), failingReader{}))
	if err == nil {
		t.Fatal("writeStream() expected error")
	}

	if s.exists(testFile) {
		t.Error("partial download left at target path")
	}
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestRemoveModelDir(t *testing.T) {
	tmpDir := t.TempDir()
	s := &storage{baseDir: tmpDir, lockTimeout: 50 * time.Millisecond}

	file := s.cachedPath("tpxo9", "tpxo9_netcdf/h_tpxo9.v1.nc")
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.removeModelDir("tpxo9"); err != nil {
		t.Fatalf("removeModelDir() error = %v", err)
	}
	if s.exists(file) {
		t.Error("cached resource still exists")
	}
	assertOnlyLockFile(t, s.modelDir("tpxo9"))

	t.Run("missing directory is not an error", func(t *testing.T) {
		if err := s.removeModelDir("tpxo7"); err != nil {
			t.Errorf("removeModelDir() on missing dir error = %v", err)
		}
		if _, err := os.Stat(s.modelDir("tpxo7")); !os.IsNotExist(err) {
			t.Errorf("removeModelDir() created the model directory: %v", err)
		}
	})

	t.Run("waits for a download in progress", func(t *testing.T) {
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		lock, err := s.lockModel("tpxo9")
		if err != nil {
			t.Fatal(err)
		}

		if err := s.removeModelDir("tpxo9"); !errors.Is(err, ErrStorage) {
			t.Errorf("removeModelDir() while locked error = %v, want ErrStorage", err)
		}
		if !s.exists(file) {
			t.Error("resource removed while another download held the lock")
		}

		lock.Unlock()
		if err := s.removeModelDir("tpxo9"); err != nil {
			t.Fatalf("removeModelDir() after unlock error = %v", err)
		}
		if s.exists(file) {
			t.Error("cached resource still exists after unlock")
		}
	})
}

// assertOnlyLockFile fails unless dir holds nothing but the download lock.
func assertOnlyLockFile(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	for _, e := range entries {
		if e.Name() != downloadLockName {
			t.Errorf("%s still holds %s", dir, e.Name())
		}
	}
}

func TestLockModel(t *testing.T) {
	tmpDir := t.TempDir()
	s := &storage{baseDir: tmpDir, lockTimeout: 50 * time.Millisecond}

	lock, err := s.lockModel("tpxo8")
	if err != nil {
		t.Fatalf("lockModel() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.modelDir("tpxo8"), ".download.lock")); err != nil {
		t.Errorf("lock file missing: %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock() error = %v", err)
	}

	again, err := s.lockModel("tpxo8")
	if err != nil {
		t.Fatalf("lockModel() after unlock error = %v", err)
	}
	again.Unlock()
}

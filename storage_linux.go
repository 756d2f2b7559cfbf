//go:build !darwin && !windows

package harmonica

import (
	"os"
	"path/filepath"
)

// getDefaultDataDir returns the default data directory for Linux and other
// Unix systems. Uses $XDG_DATA_HOME/<appName>/data/ if set,
// otherwise ~/.local/share/<appName>/data/
func getDefaultDataDir(appName string) (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName, "data"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName, "data"), nil
}

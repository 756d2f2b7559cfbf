//go:build darwin

package harmonica

import (
	"os"
	"path/filepath"
)

// getDefaultDataDir returns ~/Library/Application Support/<appName>/data/
func getDefaultDataDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "Application Support", appName, "data"), nil
}

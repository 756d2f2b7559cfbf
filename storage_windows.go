//go:build windows

package harmonica

import (
	"os"
	"path/filepath"
)

// getDefaultDataDir returns %APPDATA%\<appName>\data\
func getDefaultDataDir(appName string) (string, error) {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		appData = filepath.Join(home, "AppData", "Roaming")
	}
	return filepath.Join(appData, appName, "data"), nil
}

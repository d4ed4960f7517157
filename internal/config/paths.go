package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath returns the default path for the INI config file.
//   - Windows: %APPDATA%\packt-dl\config
//   - Unix: ~/.config/packt-dl/config
func DefaultConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "packt-dl", "config"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "packt-dl", "config"), nil
}

// LogDirectory returns the directory used for --log-file when it is given
// as a bare file name.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\packt-dl\logs
//   - Unix: ~/.config/packt-dl/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "packt-dl-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "packt-dl", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "packt-dl-logs")
		}
		return filepath.Join(homeDir, ".config", "packt-dl", "logs")
	}
	return filepath.Join(configDir, "packt-dl", "logs")
}

// ResolveLogFile places a bare file name inside LogDirectory and expands "~".
func ResolveLogFile(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if filepath.Base(name) == name {
		return filepath.Join(LogDirectory(), name), nil
	}
	return ExpandDirectory(name)
}

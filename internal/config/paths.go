package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "movegrade"

// DataDir returns the platform-specific data directory for the tool.
// - macOS: ~/Library/Application Support/movegrade/
// - Linux: ~/.local/share/movegrade/
// - Windows: %APPDATA%/movegrade/
func DataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		// Linux and other Unix-like: honor XDG_DATA_HOME first.
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// DefaultConfigPath returns the location of the config file inside the
// data directory.
func DefaultConfigPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.yaml"), nil
}

// DefaultBookPath returns the location of the opening book inside the
// data directory.
func DefaultBookPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "book.bin"), nil
}

// CloudEvalCacheDir returns the directory for the persistent cloud
// evaluation cache.
func CloudEvalCacheDir() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	cacheDir := filepath.Join(dataDir, "cloudeval")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", err
	}
	return cacheDir, nil
}

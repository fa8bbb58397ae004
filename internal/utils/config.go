package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// GetProjectRoot returns the absolute path to the project root directory.
func GetProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "." // fallback
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached root
		}
		dir = parent
	}
	return "." // fallback
}

// ExpandHome replaces a leading "~" with the current user's home directory.
// Paths without the prefix are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// GetDataRoot returns the dashboard data directory under the user's home.
func GetDataRoot() string {
	return ExpandHome(filepath.Join("~", ".coinswap", "dashboard"))
}

// GetMakerDataDir returns the default maker data directory.
func GetMakerDataDir() string {
	return ExpandHome(filepath.Join("~", ".coinswap", "maker"))
}

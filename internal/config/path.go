// Package config loads and validates tariff's configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ to the home directory and then expands
// $VAR references. The path is left alone when the home directory is unknown.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// DataDir is where tariff keeps its database and review list:
// $XDG_DATA_HOME/tariff, falling back to ~/.local/share/tariff.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "tariff")
	}
	return ExpandPath("~/.local/share/tariff")
}

// Package config loads runtime settings and retailer domain profiles.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "shophelper"

// ExpandPath resolves a leading ~ to the home directory and expands $VAR
// references. Paths are returned unchanged when the home directory is unknown.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return os.ExpandEnv(path)
}

// ConfigDir is where the config file and domain profiles live:
// $XDG_CONFIG_HOME/shophelper, or ~/.config/shophelper.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", "~/.config")
}

// DataDir holds the default SQLite database and its checkpoints:
// $XDG_DATA_HOME/shophelper, or ~/.local/share/shophelper.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", "~/.local/share")
}

func xdgDir(env, fallback string) string {
	base := os.Getenv(env)
	if base == "" {
		base = ExpandPath(fallback)
	}
	return filepath.Join(base, appName)
}

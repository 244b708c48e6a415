package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "deskclaw"

// ResolveConfigPath returns explicit when set, otherwise searches the
// standard locations:
// $XDG_CONFIG_HOME/deskclaw/deskclaw.yaml → ~/.config/deskclaw/deskclaw.yaml → ./deskclaw.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, appName, appName+".yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", appName, appName+".yaml"))
	}
	candidates = append(candidates, appName+".yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `deskclaw init` writes by default.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		return filepath.Join(xdg, appName, appName+".yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName, appName+".yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/deskclaw if set, otherwise ~/.local/share/deskclaw per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}

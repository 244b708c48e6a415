package sqlite

import (
	"fmt"
	"path/filepath"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "sessions.db"
)

// Config holds the SQLite session store configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/sessions.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`
}

// DefaultPath returns the database path used when Config.Path is empty.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, defaultDBFile)
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite: path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	return nil
}

// Package app wires deskclaw's components together and runs them. It is
// the shared entry point of the CLI and the system service.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/deskclaw/internal/config"
)

// shutdownTimeout bounds the graceful stop after a signal.
const shutdownTimeout = 15 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath searches the standard locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides log.level when set.
	LogLevel string
}

// LoadConfig resolves, loads and validates the configuration.
func LoadConfig(explicit string) (*config.Config, string, error) {
	path, err := ResolveConfigPath(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, path, nil
}

// Run loads configuration, starts every component, and blocks until ctx is
// cancelled or SIGINT/SIGTERM is received. Components are then stopped in
// reverse order.
func Run(ctx context.Context, params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := Build(ctx, cfg, Options{DataDir: dataDir, Version: params.Version})
	if err != nil {
		return err
	}
	a.Logger.Info("configuration loaded", "path", cfgPath, "data_dir", dataDir, "version", params.Version)

	// Components outlive the signal; Stop decides when they end.
	runCtx := context.WithoutCancel(ctx)
	if err := a.Start(runCtx); err != nil {
		stopCtx, cancel := context.WithTimeout(runCtx, shutdownTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
		return err
	}

	<-ctx.Done()
	a.Logger.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(runCtx, shutdownTimeout)
	defer cancel()
	return a.Stop(stopCtx)
}

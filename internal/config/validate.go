package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/flemzord/deskclaw/internal/cron"
	"github.com/flemzord/deskclaw/internal/sandbox"
)

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the structural validity of a Config after Defaults. Every
// problem is reported; the result is an errors.Join of them.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTelegram(cfg.Telegram)...)

	if cfg.Gemini.APIKey == "" {
		errs = append(errs, errors.New("config: gemini.api_key is required"))
	}
	if t := cfg.Gemini.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("config: gemini.temperature must be 0-2, got %g", *t))
	}

	errs = append(errs, validateSandbox(cfg.Sandbox)...)

	if cfg.Quota.RequestsPerHour < 0 || cfg.Quota.TokensPerDay < 0 {
		errs = append(errs, errors.New("config: quota limits must not be negative"))
	}
	if w := cfg.Quota.WarningPercent; w < 0 || w > 100 {
		errs = append(errs, fmt.Errorf("config: quota.warning_threshold must be 0-100, got %d", w))
	}

	if err := cfg.AgentLoop().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if cfg.Agent.Workers < 0 {
		errs = append(errs, errors.New("config: agent.workers must not be negative"))
	}

	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("config: storage.driver must be sqlite or memory, got %q", cfg.Storage.Driver))
	}

	if cfg.Gateway.Bind != "" && cfg.Gateway.BearerToken == "" {
		errs = append(errs, errors.New("config: gateway.bearer_token is required when gateway.bind is set"))
	}

	for name, expr := range map[string]string{
		"quota_prune":     cfg.Maintenance.QuotaPrune,
		"lane_cleanup":    cfg.Maintenance.LaneCleanup,
		"sqlite_optimize": cfg.Maintenance.SQLiteOptimize,
	} {
		if expr == DisabledSchedule {
			continue
		}
		if err := cron.ParseSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: maintenance.%s: %w", name, err))
		}
	}

	if !validLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Errorf("config: log.level must be debug, info, warn or error, got %q", cfg.Log.Level))
	}

	return errors.Join(errs...)
}

func validateTelegram(c TelegramConfig) []error {
	var errs []error

	if err := c.Config.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	for i, id := range c.AllowedUsers {
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("config: telegram.allowed_users[%d]: %q is not a numeric user id", i, id))
		}
	}

	return errs
}

func validateSandbox(c SandboxConfig) []error {
	var errs []error

	for i, p := range c.AllowedPaths {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Errorf("config: sandbox.allowed_paths[%d]: %q must be absolute", i, p))
		}
	}

	if !sandbox.Contains(c.DefaultWorkingDir, c.AllowedPaths) {
		errs = append(errs, fmt.Errorf("config: sandbox.default_working_dir %q is outside allowed_paths", c.DefaultWorkingDir))
	}

	if _, err := sandbox.NewPolicy(c.DenyPatterns...); err != nil {
		errs = append(errs, fmt.Errorf("config: sandbox.deny_patterns: %w", err))
	}

	return errs
}

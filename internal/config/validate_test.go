package config

import (
	"strings"
	"testing"
	"time"

	"github.com/flemzord/deskclaw/modules/channel/telegram"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	cfg := &Config{
		Telegram: TelegramConfig{Config: telegram.Config{Token: "123456:ABC-def_ghi"}, AllowedUsers: []string{"42"}},
		Sandbox:  SandboxConfig{AllowedPaths: []string{root}},
	}
	cfg.Gemini.APIKey = "test-key"
	cfg.Defaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "token is required"},
		{"bad token", func(c *Config) { c.Telegram.Token = "nope" }, "token format invalid"},
		{"bad api url", func(c *Config) { c.Telegram.APIURL = "ftp://x" }, "api_url"},
		{"polling timeout", func(c *Config) { c.Telegram.PollingTimeout = 99 }, "polling_timeout"},
		{"non numeric user", func(c *Config) { c.Telegram.AllowedUsers = []string{"bob"} }, "not a numeric user id"},
		{"missing api key", func(c *Config) { c.Gemini.APIKey = "" }, "gemini.api_key is required"},
		{"relative root", func(c *Config) { c.Sandbox.AllowedPaths = append(c.Sandbox.AllowedPaths, "docs") }, "must be absolute"},
		{"cwd outside", func(c *Config) { c.Sandbox.DefaultWorkingDir = "/definitely/elsewhere" }, "outside allowed_paths"},
		{"bad deny pattern", func(c *Config) { c.Sandbox.DenyPatterns = []string{"("} }, "deny_patterns"},
		{"too many iterations", func(c *Config) { c.Agent.MaxIterations = 12 }, "max_iterations"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"gateway without token", func(c *Config) { c.Gateway.Bind = ":8080" }, "bearer_token"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad schedule", func(c *Config) { c.Maintenance.LaneCleanup = "every minute" }, "maintenance.lane_cleanup"},
		{"warning threshold", func(c *Config) { c.Quota.WarningPercent = 150 }, "warning_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Telegram.Token = ""
	cfg.Gemini.APIKey = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"token is required", "gemini.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{Sandbox: SandboxConfig{AllowedPaths: []string{"/srv/a", "/srv/b"}}}
	cfg.Defaults()

	if cfg.Sandbox.DefaultWorkingDir != "/srv/a" {
		t.Errorf("DefaultWorkingDir = %q, want first allowed path", cfg.Sandbox.DefaultWorkingDir)
	}
	if cfg.Approval.Timeout != 30*time.Second {
		t.Errorf("Approval.Timeout = %v, want 30s", cfg.Approval.Timeout)
	}
	if cfg.Quota.RequestsPerHour != 100 || cfg.Quota.TokensPerDay != 1_000_000 || cfg.Quota.WarningPercent != 80 {
		t.Errorf("Quota = %+v, want stock limits", cfg.Quota)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Gemini.Model = %q", cfg.Gemini.Model)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q", cfg.Storage.Driver)
	}
	if cfg.Agent.MaxIterations != 8 {
		t.Errorf("Agent.MaxIterations = %d", cfg.Agent.MaxIterations)
	}
}

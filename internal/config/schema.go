// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for deskclaw.
package config

import (
	"time"

	"github.com/flemzord/deskclaw/internal/gateway"
	"github.com/flemzord/deskclaw/internal/quota"
	"github.com/flemzord/deskclaw/internal/telemetry"
	"github.com/flemzord/deskclaw/internal/tools/browser"
	"github.com/flemzord/deskclaw/internal/tools/files"
	"github.com/flemzord/deskclaw/internal/tools/imagegen"
	"github.com/flemzord/deskclaw/modules/channel/telegram"
	"github.com/flemzord/deskclaw/modules/provider/gemini"
	"github.com/flemzord/deskclaw/modules/session/sqlite"
)

// Config is the top-level configuration structure.
type Config struct {
	Telegram        TelegramConfig          `yaml:"telegram"`
	Gemini          gemini.Config           `yaml:"gemini"`
	Sandbox         SandboxConfig           `yaml:"sandbox"`
	Quota           quota.Limits            `yaml:"quota"`
	Approval        ApprovalConfig          `yaml:"approval"`
	Agent           AgentConfig             `yaml:"agent"`
	Files           files.Config            `yaml:"files"`
	Browser         browser.Config          `yaml:"browser"`
	ImageGeneration imagegen.Config         `yaml:"image_generation"`
	Storage         StorageConfig           `yaml:"storage"`
	Gateway         gateway.Config          `yaml:"gateway"`
	Telemetry       telemetry.TracingConfig `yaml:"telemetry"`
	Log             LogConfig               `yaml:"log"`
	Maintenance     MaintenanceConfig       `yaml:"maintenance"`
}

// TelegramConfig configures the bot transport and who may use it.
type TelegramConfig struct {
	telegram.Config `yaml:",inline"`

	// AllowedUsers lists the Telegram user ids allowed to talk to the bot.
	// An empty list denies everyone.
	AllowedUsers []string `yaml:"allowed_users"`
}

// SandboxConfig lists the directories tools may touch.
type SandboxConfig struct {
	AllowedPaths      []string `yaml:"allowed_paths"`
	DefaultWorkingDir string   `yaml:"default_working_dir"`
	DenyPatterns      []string `yaml:"deny_patterns"`
}

// ApprovalConfig configures the confirmation gate.
type ApprovalConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AgentConfig configures the function-calling loop.
type AgentConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	TurnTimeout      time.Duration `yaml:"turn_timeout"`
	SystemPrompt     string        `yaml:"system_prompt"`
	LoopThreshold    int           `yaml:"loop_threshold"`
	MaxHistory       int           `yaml:"max_history"`
	Workers          int           `yaml:"workers"`
}

// StorageConfig selects the session store.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "memory".
	Driver        string `yaml:"driver"`
	sqlite.Config `yaml:",inline"`
}

// LogConfig configures the process logger and the audit trail.
type LogConfig struct {
	Level     string `yaml:"level"`
	AuditPath string `yaml:"audit_path"`
}

// DisabledSchedule turns a maintenance job off.
const DisabledSchedule = "-"

// MaintenanceConfig holds cron expressions for background jobs. An empty
// expression uses the default schedule; DisabledSchedule disables the job.
type MaintenanceConfig struct {
	QuotaPrune     string `yaml:"quota_prune"`
	LaneCleanup    string `yaml:"lane_cleanup"`
	SQLiteOptimize string `yaml:"sqlite_optimize"`
}

package config

import (
	"time"

	"github.com/flemzord/deskclaw/internal/agent"
	"github.com/flemzord/deskclaw/internal/approval"
	"github.com/flemzord/deskclaw/internal/cron"
	"github.com/flemzord/deskclaw/internal/quota"
)

// Default values applied by Defaults.
const (
	DefaultStorageDriver = "sqlite"
	DefaultLogLevel      = "info"
	DefaultWorkers       = 16
)

// DefaultAllowedPaths are used when sandbox.allowed_paths is empty.
var DefaultAllowedPaths = []string{"~/Documents", "~/Downloads", "~/Desktop"}

// Defaults fills in zero-value fields and expands "~" in every path.
func (c *Config) Defaults() {
	c.Telegram.Defaults()

	c.Gemini.Defaults()

	if len(c.Sandbox.AllowedPaths) == 0 {
		c.Sandbox.AllowedPaths = append([]string(nil), DefaultAllowedPaths...)
	}
	for i, p := range c.Sandbox.AllowedPaths {
		c.Sandbox.AllowedPaths[i] = ExpandHome(p)
	}
	if c.Sandbox.DefaultWorkingDir == "" {
		c.Sandbox.DefaultWorkingDir = c.Sandbox.AllowedPaths[0]
	}
	c.Sandbox.DefaultWorkingDir = ExpandHome(c.Sandbox.DefaultWorkingDir)

	if c.Quota == (quota.Limits{}) {
		c.Quota = quota.DefaultLimits()
	}
	if c.Approval.Timeout <= 0 {
		c.Approval.Timeout = approval.DefaultTimeout
	}

	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = agent.DefaultMaxIterations
	}
	if c.Agent.MaxParallelTools == 0 {
		c.Agent.MaxParallelTools = agent.DefaultMaxParallelTools
	}
	if c.Agent.TurnTimeout == 0 {
		c.Agent.TurnTimeout = agent.DefaultTurnTimeout
	}
	if c.Agent.LoopThreshold == 0 {
		c.Agent.LoopThreshold = agent.DefaultLoopThreshold
	}
	if c.Agent.Workers == 0 {
		c.Agent.Workers = DefaultWorkers
	}

	c.Files.Defaults()
	c.Browser.Defaults()
	c.ImageGeneration.Defaults()
	c.Gateway.Defaults()

	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	c.Storage.Path = ExpandHome(c.Storage.Path)

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	c.Log.AuditPath = ExpandHome(c.Log.AuditPath)

	if c.Maintenance.QuotaPrune == "" {
		c.Maintenance.QuotaPrune = cron.DefaultQuotaPruneSchedule
	}
	if c.Maintenance.LaneCleanup == "" {
		c.Maintenance.LaneCleanup = cron.DefaultLaneCleanupSchedule
	}
	if c.Maintenance.SQLiteOptimize == "" {
		c.Maintenance.SQLiteOptimize = cron.DefaultSQLiteOptimizeSchedule
	}
}

// AgentLoop converts the agent section into the loop's configuration.
func (c *Config) AgentLoop() agent.Config {
	return agent.Config{
		MaxIterations:    c.Agent.MaxIterations,
		MaxParallelTools: c.Agent.MaxParallelTools,
		TurnTimeout:      c.Agent.TurnTimeout,
		LoopThreshold:    c.Agent.LoopThreshold,
		ApprovalTimeout:  c.Approval.Timeout,
		MaxHistory:       c.Agent.MaxHistory,
		SystemPrompt:     c.Agent.SystemPrompt,
		Temperature:      c.Gemini.Temperature,
		MaxOutputTokens:  c.Gemini.MaxOutputTokens,
	}
}

// MaxIdle is how long usage counters and lane locks survive without activity.
const MaxIdle = 48 * time.Hour

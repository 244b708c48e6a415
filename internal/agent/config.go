package agent

import (
	"errors"
	"fmt"
	"time"
)

// Default values for Config.
const (
	DefaultMaxIterations    = 8
	DefaultMaxParallelTools = 4
	DefaultTurnTimeout      = 5 * time.Minute
	DefaultLoopThreshold    = 3
)

// MaxIterationsCeiling is the highest accepted MaxIterations.
const MaxIterationsCeiling = 9

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("agent: invalid config")

// Config controls the function-calling loop.
type Config struct {
	// MaxIterations is the maximum number of model calls per turn (1-9).
	MaxIterations int

	// MaxParallelTools bounds how many tool calls of one round run at once.
	MaxParallelTools int

	// TurnTimeout is the maximum wall-clock duration of a turn, including
	// time spent waiting for confirmations.
	TurnTimeout time.Duration

	// LoopThreshold is how many times the same tool call (name + args)
	// may repeat in a turn before the loop is considered stuck.
	LoopThreshold int

	// ApprovalTimeout overrides the gate's default wait. Zero keeps it.
	ApprovalTimeout time.Duration

	// MaxHistory caps the persisted history. Older turns are dropped whole;
	// the turn being saved is always kept. Zero keeps everything.
	MaxHistory int

	SystemPrompt    string
	Temperature     *float64
	MaxOutputTokens int
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxParallelTools <= 0 {
		c.MaxParallelTools = DefaultMaxParallelTools
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	return c
}

// Validate rejects settings the loop cannot honor.
func (c Config) Validate() error {
	if c.MaxIterations != 0 && (c.MaxIterations < 1 || c.MaxIterations > MaxIterationsCeiling) {
		return fmt.Errorf("%w: max_iterations must be between 1 and %d, got %d", ErrInvalidConfig, MaxIterationsCeiling, c.MaxIterations)
	}
	if c.MaxParallelTools < 0 {
		return fmt.Errorf("%w: max_parallel_tools must not be negative", ErrInvalidConfig)
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("%w: max_history must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultSystemPrompt describes the assistant to the model.
const DefaultSystemPrompt = `You are deskclaw, a personal desktop assistant reached through Telegram.
You can read, write and organize files inside the user's allowed folders, analyze PDF and Word documents,
browse and summarize web pages, take screenshots and generate images.
Use the tools when they help. Paths are relative to the user's current working directory.
Some tools need the user's confirmation; if a call is denied, explain what you would have done instead of retrying it.
Answer concisely in the user's language.`

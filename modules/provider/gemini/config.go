package gemini

import "time"

// defaultModel is used when the configuration leaves model empty.
const defaultModel = "gemini-2.5-flash"

// defaultTimeout bounds a single generateContent call.
const defaultTimeout = 2 * time.Minute

// Config holds the YAML-decoded configuration for the Gemini provider.
type Config struct {
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	Temperature     *float64      `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Defaults fills in zero-value fields.
func (c *Config) Defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

package gateway

import "time"

// Config holds HTTP gateway configuration. An empty Bind disables the
// gateway.
type Config struct {
	Bind            string        `yaml:"bind"`
	BearerToken     string        `yaml:"bearer_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults fills zero timeouts. Bind is left as configured.
func (c *Config) Defaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Enabled reports whether the gateway should be started.
func (c Config) Enabled() bool { return c.Bind != "" }

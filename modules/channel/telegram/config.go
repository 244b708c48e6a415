package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Defaults for Config.
const (
	DefaultPollingTimeout   = 30
	DefaultAPIURL           = "https://api.telegram.org"
	DefaultMaxMessageLength = 4096
)

// Config holds the Telegram transport configuration.
type Config struct {
	Token            string `yaml:"token"`
	PollingTimeout   int    `yaml:"polling_timeout"`
	APIURL           string `yaml:"api_url"`
	MaxMessageLength int    `yaml:"max_message_length"`
}

// Defaults applies default values to unset fields.
func (c *Config) Defaults() {
	if c.PollingTimeout == 0 {
		c.PollingTimeout = DefaultPollingTimeout
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
}

// Validate checks field constraints after Defaults.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Token == "":
		errs = append(errs, errors.New("telegram: token is required"))
	case !tokenPattern.MatchString(c.Token):
		errs = append(errs, errors.New("telegram: token format invalid (expected <bot_id>:<hash>)"))
	}

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL))
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		errs = append(errs, fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout))
	}

	if c.MaxMessageLength < 1 || c.MaxMessageLength > DefaultMaxMessageLength {
		errs = append(errs, fmt.Errorf("telegram: max_message_length must be 1-4096, got %d", c.MaxMessageLength))
	}

	return errors.Join(errs...)
}

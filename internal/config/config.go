package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models crewline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Monitor struct {
		Enabled           *bool  `yaml:"enabled"`
		Interval          string `yaml:"interval"`
		DelegationTimeout string `yaml:"delegation_timeout"`
		BlockedTimeout    string `yaml:"blocked_timeout"`
	} `yaml:"monitor"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook is an outbound event subscription.
type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// MonitorEnabled reports whether the escalation monitor should run.
func (c *Config) MonitorEnabled() bool {
	return c.Monitor.Enabled == nil || *c.Monitor.Enabled
}

// MonitorInterval returns the scan interval.
func (c *Config) MonitorInterval() time.Duration {
	d, err := time.ParseDuration(c.Monitor.Interval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// DelegationTimeout returns the staleness threshold for active delegations.
func (c *Config) DelegationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Monitor.DelegationTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// BlockedTimeout returns how long a work item may sit blocked before an
// escalation is raised.
func (c *Config) BlockedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Monitor.BlockedTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Hour
	}
	return d
}

func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

func (w Webhook) Timeout() time.Duration {
	if w.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cw init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	for _, field := range []struct{ name, value string }{
		{"config.monitor.interval", c.Monitor.Interval},
		{"config.monitor.delegation_timeout", c.Monitor.DelegationTimeout},
		{"config.monitor.blocked_timeout", c.Monitor.BlockedTimeout},
	} {
		if field.value == "" {
			continue
		}
		if d, err := time.ParseDuration(field.value); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", field.name, field.value)
		}
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if len(w.Events) == 0 {
			return fmt.Errorf("config.webhooks[%d].events is required", i)
		}
		for _, evt := range w.Events {
			if evt == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event pattern", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crewline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:7700
  base_path: /api/v1

monitor:
  enabled: true
  interval: 1m
  delegation_timeout: 30m
  blocked_timeout: 2h

# Outbound webhooks receive domain events as they are appended.
# webhooks:
#   - url: https://example.com/crewline
#     events: [item.state_changed, escalation.raised]
#     secret: change-me
#     timeout_seconds: 10
`

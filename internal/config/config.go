package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// StringList unmarshals from either a single YAML scalar or a sequence.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var ss []string
	if err := value.Decode(&ss); err != nil {
		return err
	}
	*l = StringList(ss)
	return nil
}

// Check describes a single built-in dependency check to register.
type Check struct {
	Name           string            `yaml:"name"`
	Type           string            `yaml:"type"`
	Target         string            `yaml:"target"`
	Timeout        Duration          `yaml:"timeout"`
	ExpectedStatus int               `yaml:"expected_status"`
	Headers        map[string]string `yaml:"headers"`
	Critical       bool              `yaml:"critical"`
	Disabled       bool              `yaml:"disabled"`
	Order          int               `yaml:"order"`
}

// HealthCheck holds the orchestrator settings.
type HealthCheck struct {
	Enabled          bool       `yaml:"enabled"`
	ChecksEnabled    StringList `yaml:"checks_enabled"`
	ScheduleInterval Duration   `yaml:"schedule_interval"`
	RetriesDelay     Duration   `yaml:"retries_delay"`
	MaxRetries       int        `yaml:"max_retries"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Cooldown Duration `yaml:"cooldown"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds run-history storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Config is the root application configuration.
type Config struct {
	HealthCheck HealthCheck   `yaml:"healthcheck"`
	Checks      []Check       `yaml:"checks"`
	Alerts      AlertsConfig  `yaml:"alerts"`
	Server      ServerConfig  `yaml:"server"`
	Storage     StorageConfig `yaml:"storage"`
}

// Bounds enforced at load time. A process must not start with an interval
// or delay outside these ranges.
const (
	MinScheduleInterval = 5 * time.Minute
	MaxScheduleInterval = 24 * time.Hour
	MaxRetriesDelay     = 6 * time.Hour

	DefaultScheduleInterval = 15 * time.Minute
	DefaultRetriesDelay     = 2500 * time.Millisecond
	DefaultMaxRetries       = 5
	DefaultCheckTimeout     = 5 * time.Second
)

var validCheckTypes = map[string]bool{
	"http":   true,
	"tcp":    true,
	"docker": true,
}

// Load reads, parses, validates, and applies defaults to the config file
// at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		HealthCheck: HealthCheck{Enabled: true},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) error {
	hc := &cfg.HealthCheck
	if len(hc.ChecksEnabled) == 0 {
		hc.ChecksEnabled = StringList{".*"}
	}
	if hc.ScheduleInterval.Duration == 0 {
		hc.ScheduleInterval = Duration{DefaultScheduleInterval}
	}
	if hc.RetriesDelay.Duration == 0 {
		hc.RetriesDelay = Duration{DefaultRetriesDelay}
	}
	if hc.MaxRetries == 0 {
		hc.MaxRetries = DefaultMaxRetries
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "healthgate.db"
	}

	for i := range cfg.Checks {
		c := &cfg.Checks[i]
		if c.Timeout.Duration == 0 {
			c.Timeout = Duration{DefaultCheckTimeout}
		}
		if c.Type == "http" && c.ExpectedStatus == 0 {
			c.ExpectedStatus = 200
		}
	}
	return nil
}

func validate(cfg *Config) error {
	hc := cfg.HealthCheck
	if hc.ScheduleInterval.Duration < MinScheduleInterval || hc.ScheduleInterval.Duration > MaxScheduleInterval {
		return fmt.Errorf("healthcheck.schedule_interval %s is not valid: must be between 5 minutes (5m) and 24 hours (24h)",
			hc.ScheduleInterval.Duration)
	}
	if hc.RetriesDelay.Duration < 0 || hc.RetriesDelay.Duration > MaxRetriesDelay {
		return fmt.Errorf("healthcheck.retries_delay %s is not valid: must be between 0 seconds (0s) and 6 hours (6h)",
			hc.RetriesDelay.Duration)
	}
	if hc.MaxRetries < 1 {
		return fmt.Errorf("healthcheck.max_retries must be at least 1, got %d", hc.MaxRetries)
	}
	for _, pattern := range hc.ChecksEnabled {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("healthcheck.checks_enabled pattern %q: %w", pattern, err)
		}
	}

	names := make(map[string]bool, len(cfg.Checks))
	for i, c := range cfg.Checks {
		if c.Name == "" {
			return fmt.Errorf("checks[%d]: name is required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate check name %q", c.Name)
		}
		names[c.Name] = true

		if c.Target == "" {
			return fmt.Errorf("check %q: target is required", c.Name)
		}
		if !validCheckTypes[c.Type] {
			return fmt.Errorf("check %q: invalid type %q (must be http, tcp, or docker)", c.Name, c.Type)
		}
		if c.Timeout.Duration < 0 {
			return fmt.Errorf("check %q: timeout must not be negative", c.Name)
		}
	}
	return nil
}

// CompileChecksEnabled compiles the checks_enabled patterns. Load has
// already verified they compile.
func (hc HealthCheck) CompileChecksEnabled() ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(hc.ChecksEnabled))
	for _, pattern := range hc.ChecksEnabled {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling checks_enabled pattern %q: %w", pattern, err)
		}
		res = append(res, re)
	}
	return res, nil
}

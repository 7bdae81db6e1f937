// Package config handles SeedClaw configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/seedclaw/config.yaml, /etc/seedclaw/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "seedclaw", "config.yaml"))
	}

	paths = append(paths, "/etc/seedclaw/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all SeedClaw configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Discord   DiscordConfig   `yaml:"discord"`
	Agent     AgentConfig     `yaml:"agent"`
	Rules     RulesConfig     `yaml:"rules"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Fetch     FetchConfig     `yaml:"fetch"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text or json
}

// AnthropicConfig defines Messages API settings. APIKey and Model are
// defaults; values stored with the admin console take precedence.
type AnthropicConfig struct {
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	RateLimitWait time.Duration `yaml:"rate_limit_wait"` // used when Retry-After is absent
	MaxRetries    int           `yaml:"max_retries"`     // 429 retries before giving up
}

// DiscordConfig defines the chat transport. Token, ChannelID and
// WebhookURL may also be set at runtime from the admin console.
type DiscordConfig struct {
	Token          string        `yaml:"token"`
	ChannelID      string        `yaml:"channel_id"`
	WebhookURL     string        `yaml:"webhook_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollBatch      int           `yaml:"poll_batch"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxContent     int           `yaml:"max_content"` // inbound bytes kept per message
	Announce       bool          `yaml:"announce"`    // send an online notice after connecting
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	HistoryCapacity int    `yaml:"history_capacity"`
	MaxToolCalls    int    `yaml:"max_tool_calls"`
	MinFreeMemory   uint64 `yaml:"min_free_memory"` // bytes; below this the transcript is reseeded
	MemoryLimit     uint64 `yaml:"memory_limit"`    // bytes; 0 uses the runtime soft limit
	SystemPrompt    string `yaml:"system_prompt"`
	NoChangeMarker  string `yaml:"no_change_marker"`
	ReportPrefix    string `yaml:"report_prefix"`
}

// RulesConfig bounds the monitoring rule set.
type RulesConfig struct {
	MaxRules      int `yaml:"max_rules"`
	MaxRuleLength int `yaml:"max_rule_length"`
}

// HardwareConfig describes the pins the tools may touch.
type HardwareConfig struct {
	AllowedPins    []int `yaml:"allowed_pins"`
	ADCPins        []int `yaml:"adc_pins"`
	MaxPWMChannels int   `yaml:"max_pwm_channels"`
	DefaultPWMFreq int   `yaml:"default_pwm_freq"`
	VRefMillivolts int   `yaml:"vref_mv"`
}

// FetchConfig controls the web_fetch tool.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	DefaultMaxBytes int           `yaml:"default_max_bytes"`
	MinBytes        int           `yaml:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes"`
}

// MQTTConfig defines the optional telemetry publisher. Publishing is
// enabled when Broker is set.
type MQTTConfig struct {
	Broker          string        `yaml:"broker"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	DeviceName      string        `yaml:"device_name"`
	DiscoveryPrefix string        `yaml:"discovery_prefix"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// Configured reports whether an MQTT broker is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file, expanding environment
// variables, and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-haiku-4-5-20251001"
	}
	if c.Anthropic.BaseURL == "" {
		c.Anthropic.BaseURL = "https://api.anthropic.com"
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = 1024
	}
	if c.Anthropic.Timeout == 0 {
		c.Anthropic.Timeout = 30 * time.Second
	}
	if c.Anthropic.RateLimitWait == 0 {
		c.Anthropic.RateLimitWait = 10 * time.Second
	}

	if c.Discord.PollInterval == 0 {
		c.Discord.PollInterval = 3 * time.Second
	}
	if c.Discord.PollBatch == 0 {
		c.Discord.PollBatch = 3
	}
	if c.Discord.BackoffInitial == 0 {
		c.Discord.BackoffInitial = 3 * time.Second
	}
	if c.Discord.BackoffMax == 0 {
		c.Discord.BackoffMax = 60 * time.Second
	}
	if c.Discord.Timeout == 0 {
		c.Discord.Timeout = 10 * time.Second
	}
	if c.Discord.MaxContent == 0 {
		c.Discord.MaxContent = 512
	}

	if c.Agent.HistoryCapacity == 0 {
		c.Agent.HistoryCapacity = 12
	}
	if c.Agent.MaxToolCalls == 0 {
		c.Agent.MaxToolCalls = 5
	}
	if c.Agent.MinFreeMemory == 0 {
		c.Agent.MinFreeMemory = 40000
	}
	if c.Agent.NoChangeMarker == "" {
		c.Agent.NoChangeMarker = "No change"
	}
	if c.Agent.ReportPrefix == "" {
		c.Agent.ReportPrefix = "**[Auto-monitor]** "
	}

	if c.Rules.MaxRules == 0 {
		c.Rules.MaxRules = 5
	}
	if c.Rules.MaxRuleLength == 0 {
		c.Rules.MaxRuleLength = 256
	}

	if len(c.Hardware.AllowedPins) == 0 {
		c.Hardware.AllowedPins = []int{2, 3, 4, 5, 6, 7, 8, 10, 20, 21}
	}
	if len(c.Hardware.ADCPins) == 0 {
		c.Hardware.ADCPins = []int{2, 3, 4}
	}
	if c.Hardware.MaxPWMChannels == 0 {
		c.Hardware.MaxPWMChannels = 6
	}
	if c.Hardware.DefaultPWMFreq == 0 {
		c.Hardware.DefaultPWMFreq = 1000
	}
	if c.Hardware.VRefMillivolts == 0 {
		c.Hardware.VRefMillivolts = 3300
	}

	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 10 * time.Second
	}
	if c.Fetch.DefaultMaxBytes == 0 {
		c.Fetch.DefaultMaxBytes = 4096
	}
	if c.Fetch.MinBytes == 0 {
		c.Fetch.MinBytes = 256
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 8192
	}

	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "seedclaw"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 60 * time.Second
	}

	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}

// Validate reports configuration that would violate runtime bounds.
// A round records one invocation and one result per tool call on top
// of the user message, so the transcript must be able to hold it.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.MaxToolCalls < 1 {
		errs = append(errs, fmt.Errorf("agent.max_tool_calls must be at least 1"))
	}
	if need := c.Agent.MaxToolCalls*2 + 1; c.Agent.HistoryCapacity < need {
		errs = append(errs, fmt.Errorf("agent.history_capacity %d cannot hold a full round (need %d)",
			c.Agent.HistoryCapacity, need))
	}
	if c.Rules.MaxRules < 1 {
		errs = append(errs, fmt.Errorf("rules.max_rules must be at least 1"))
	}
	if c.Rules.MaxRuleLength < 1 {
		errs = append(errs, fmt.Errorf("rules.max_rule_length must be at least 1"))
	}
	if c.Fetch.MinBytes > c.Fetch.MaxBytes {
		errs = append(errs, fmt.Errorf("fetch.min_bytes %d exceeds fetch.max_bytes %d",
			c.Fetch.MinBytes, c.Fetch.MaxBytes))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}

package main

import (
	"sync"
	"time"

	"github.com/seedclaw/seedclaw/internal/agent"
	"github.com/seedclaw/seedclaw/internal/buildinfo"
	"github.com/seedclaw/seedclaw/internal/connwatch"
	"github.com/seedclaw/seedclaw/internal/hardware"
	"github.com/seedclaw/seedclaw/internal/prompts"
	"github.com/seedclaw/seedclaw/internal/rules"
	"github.com/seedclaw/seedclaw/internal/settings"
)

// settingsCredentials reads live credentials from the settings store,
// so console changes apply to the next request.
type settingsCredentials struct {
	s *settings.Store
}

// Credentials implements llm.CredentialSource.
func (c settingsCredentials) Credentials() (apiKey, model string) {
	return c.s.Get(settings.APIKey), c.s.Get(settings.Model)
}

// DiscordCredentials implements discord.Credentials.
func (c settingsCredentials) DiscordCredentials() (token, channelID, webhookURL string) {
	return c.s.Get(settings.DiscordToken), c.s.Get(settings.DiscordChannel), c.s.Get(settings.DiscordWebhook)
}

// SystemPrompt returns the operator prompt, or the built-in default.
func (c settingsCredentials) SystemPrompt() string {
	if p := c.s.Get(settings.SystemPrompt); p != "" {
		return p
	}
	return prompts.DefaultSystem
}

// mqttStats bridges the running process to mqtt.StatsSource.
type mqttStats struct {
	settings *settings.Store
	rules    *rules.Store
	board    hardware.Capability
	discord  *connwatch.Service

	mu      sync.Mutex
	lastAt  time.Time
	latency time.Duration
}

// observe records a completed reply.
func (m *mqttStats) observe(resp *agent.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAt = time.Now()
	m.latency = resp.Elapsed
}

func (m *mqttStats) Uptime() time.Duration { return buildinfo.Uptime() }
func (m *mqttStats) Version() string       { return buildinfo.Version }
func (m *mqttStats) Model() string         { return m.settings.Get(settings.Model) }
func (m *mqttStats) RuleCount() int        { return m.rules.Count() }
func (m *mqttStats) AutoInterval() int     { return m.rules.Interval() }
func (m *mqttStats) DiscordReady() bool    { return m.discord.IsReady() }
func (m *mqttStats) Pins() hardware.Status { return m.board.Status() }

func (m *mqttStats) LastReply() (time.Time, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAt, m.latency
}

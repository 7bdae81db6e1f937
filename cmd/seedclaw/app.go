package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/seedclaw/seedclaw/internal/agent"
	"github.com/seedclaw/seedclaw/internal/buildinfo"
	"github.com/seedclaw/seedclaw/internal/config"
	"github.com/seedclaw/seedclaw/internal/connwatch"
	"github.com/seedclaw/seedclaw/internal/console"
	"github.com/seedclaw/seedclaw/internal/conversation"
	"github.com/seedclaw/seedclaw/internal/discord"
	"github.com/seedclaw/seedclaw/internal/fetch"
	"github.com/seedclaw/seedclaw/internal/hardware"
	"github.com/seedclaw/seedclaw/internal/llm"
	"github.com/seedclaw/seedclaw/internal/opstate"
	"github.com/seedclaw/seedclaw/internal/rules"
	"github.com/seedclaw/seedclaw/internal/settings"
	"github.com/seedclaw/seedclaw/internal/tools"
	"github.com/seedclaw/seedclaw/internal/usage"
)

// app is everything the subcommands share: persisted state, the board,
// the tool registry and the agent.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	state    *opstate.Store
	usage    *usage.Store
	settings *settings.Store
	rules    *rules.Store
	board    *hardware.Board
	registry *tools.Registry
	loop     *agent.Loop
	monitor  *agent.Monitor
	health   *connwatch.Manager
	discord  *discord.Client
}

// openApp loads config and builds the app. The returned app must be
// closed.
func openApp(ctx context.Context, logw io.Writer, configPath string) (*app, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Validate already rejected unknown levels.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := newLogger(logw, level, cfg.LogFormat)
	logger.Info("config loaded", "path", cfgPath, "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	var err error
	a.state, err = opstate.NewStore(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	a.usage, err = usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}

	a.settings = settings.New(a.state, map[settings.Key]string{
		settings.APIKey:         cfg.Anthropic.APIKey,
		settings.Model:          cfg.Anthropic.Model,
		settings.SystemPrompt:   cfg.Agent.SystemPrompt,
		settings.DiscordToken:   cfg.Discord.Token,
		settings.DiscordChannel: cfg.Discord.ChannelID,
		settings.DiscordWebhook: cfg.Discord.WebhookURL,
	}, logger)

	a.rules, err = rules.New(rules.Config{
		MaxRules:      cfg.Rules.MaxRules,
		MaxRuleLength: cfg.Rules.MaxRuleLength,
	}, a.state, logger)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	a.board = hardware.NewBoard(hardware.BoardConfig{
		AllowedPins:    cfg.Hardware.AllowedPins,
		ADCPins:        cfg.Hardware.ADCPins,
		MaxPWMChannels: cfg.Hardware.MaxPWMChannels,
		DefaultPWMFreq: cfg.Hardware.DefaultPWMFreq,
		VRefMillivolts: cfg.Hardware.VRefMillivolts,
	}, logger)

	fetcher := fetch.New(fetch.Config{
		Timeout:         cfg.Fetch.Timeout,
		DefaultMaxBytes: cfg.Fetch.DefaultMaxBytes,
		MinBytes:        cfg.Fetch.MinBytes,
		MaxBytes:        cfg.Fetch.MaxBytes,
	}, logger)

	a.registry = tools.NewRegistry(logger)
	if err := errors.Join(
		tools.RegisterHardware(a.registry, a.board, cfg.Hardware.DefaultPWMFreq),
		tools.RegisterWeb(a.registry, fetcher),
		tools.RegisterRules(a.registry, a.rules, cfg.Discord.PollInterval),
	); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	if err := a.registry.Verify(tools.Builtin...); err != nil {
		return err
	}

	creds := settingsCredentials{a.settings}
	client := llm.NewAnthropicClient(llm.AnthropicConfig{
		BaseURL:       cfg.Anthropic.BaseURL,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		Timeout:       cfg.Anthropic.Timeout,
		RateLimitWait: cfg.Anthropic.RateLimitWait,
		MaxRetries:    cfg.Anthropic.MaxRetries,
	}, creds, logger)

	a.loop = agent.NewLoop(logger, client, a.registry,
		conversation.NewStore(cfg.Agent.HistoryCapacity),
		agent.Config{
			MaxToolCalls:  cfg.Agent.MaxToolCalls,
			MinFreeMemory: cfg.Agent.MinFreeMemory,
		})
	a.loop.SetMemoryProbe(agent.NewRuntimeProbe(cfg.Agent.MemoryLimit))
	a.loop.SetUsageRecorder(a.usage)
	a.loop.SetSystemPrompt(creds.SystemPrompt)

	a.monitor = agent.NewMonitor(logger, a.loop, a.rules, agent.MonitorConfig{
		NoChangeMarker: cfg.Agent.NoChangeMarker,
		ReportPrefix:   cfg.Agent.ReportPrefix,
	})

	a.health = connwatch.NewManager(logger)
	a.discord = discord.NewClient(discord.Config{
		Timeout:    cfg.Discord.Timeout,
		MaxContent: cfg.Discord.MaxContent,
	}, creds, a.state, func(token string) (discord.Session, error) {
		s, err := discord.NewSession(token, cfg.Discord.Timeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, logger)

	logger.Info("agent ready",
		"version", buildinfo.Version,
		"tools", len(a.registry.Names()),
		"rules", a.rules.Count(),
		"interval", a.rules.Interval())
	return nil
}

func (a *app) consoleDeps() console.Deps {
	return console.Deps{
		Rules:          a.rules,
		Settings:       a.settings,
		Board:          a.board,
		Agent:          a.loop,
		Monitor:        a.monitor,
		Chat:           a.discord,
		Usage:          a.usage,
		Health:         a.health,
		PollInterval:   a.cfg.Discord.PollInterval,
		DefaultPWMFreq: a.cfg.Hardware.DefaultPWMFreq,
		Version:        buildinfo.Version,
		Uptime:         buildinfo.Uptime,
	}
}

// Close releases the stores.
func (a *app) Close() {
	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			a.logger.Warn("close usage store", "error", err)
		}
	}
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.logger.Warn("close state store", "error", err)
		}
	}
}

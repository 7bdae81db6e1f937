package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/seedclaw/seedclaw/internal/agent"
	"github.com/seedclaw/seedclaw/internal/bridge"
	"github.com/seedclaw/seedclaw/internal/buildinfo"
	"github.com/seedclaw/seedclaw/internal/connwatch"
	"github.com/seedclaw/seedclaw/internal/console"
	"github.com/seedclaw/seedclaw/internal/mqtt"
)

// runServe is the primary operating mode: the Discord bridge, the
// optional MQTT publisher and the admin console on stdin, until ctx is
// cancelled.
//
// Shutdown: the signal cancels ctx, the bridge finishes its current
// step, MQTT publishes "offline", then the stores close.
func runServe(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	a, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting SeedClaw", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg := a.cfg
	discordHealth := a.health.Track("discord")

	b := bridge.New(bridge.Config{
		PollInterval: cfg.Discord.PollInterval,
		PollBatch:    cfg.Discord.PollBatch,
		Backoff: connwatch.BackoffConfig{
			InitialDelay: cfg.Discord.BackoffInitial,
			MaxDelay:     cfg.Discord.BackoffMax,
			Multiplier:   2,
		},
		Announce: cfg.Discord.Announce,
		Version:  buildinfo.Version,
	}, a.discord, a.loop, a.monitor, discordHealth, a.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	var publisher *mqtt.Publisher
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return err
		}
		tokens := mqtt.NewDailyTokens(nil)
		stats := &mqttStats{
			settings: a.settings,
			rules:    a.rules,
			board:    a.board,
			discord:  discordHealth,
		}
		b.OnReply(func(resp *agent.Response) {
			tokens.OnTokens(resp.InputTokens, resp.OutputTokens)
			stats.observe(resp)
		})

		publisher = mqtt.New(cfg.MQTT, instanceID, tokens, stats,
			mqtt.NewSubscriber(a.board, a.logger), a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publisher.Start(ctx); err != nil {
				a.logger.Error("mqtt publisher stopped", "error", err)
			}
		}()
		a.logger.Info("mqtt publisher enabled", "broker", cfg.MQTT.Broker, "device", cfg.MQTT.DeviceName)
	}

	if stdin != nil {
		go func() {
			if err := console.REPL(ctx, a.consoleDeps(), stdin, stdout); err != nil {
				a.logger.Warn("admin console stopped", "error", err)
			}
		}()
	}

	err = b.Run(ctx)
	cancel()

	if publisher != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := publisher.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("mqtt disconnect", "error", err)
		}
		stopCancel()
	}
	wg.Wait()

	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	a.logger.Info("SeedClaw stopped")
	return nil
}

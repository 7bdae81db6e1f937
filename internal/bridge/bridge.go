// Package bridge is the main service loop: poll the chat channel,
// answer each message with the agent, send the reply, then give the
// monitor its tick.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/seedclaw/seedclaw/internal/agent"
	"github.com/seedclaw/seedclaw/internal/connwatch"
	"github.com/seedclaw/seedclaw/internal/discord"
	"github.com/seedclaw/seedclaw/internal/prompts"
)

// Chat is the inbound/outbound channel.
type Chat interface {
	Poll(ctx context.Context, limit int) ([]discord.Message, error)
	Send(ctx context.Context, text string) error
}

// Runner answers one message.
type Runner interface {
	Run(ctx context.Context, message string) *agent.Response
}

// Ticker is the autonomous monitor.
type Ticker interface {
	Tick(ctx context.Context) (report string, ok bool)
}

// Config tunes the loop.
type Config struct {
	PollInterval time.Duration
	PollBatch    int
	Backoff      connwatch.BackoffConfig
	// Announce sends an online notice after the first successful poll.
	Announce bool
	Version  string
}

// Bridge ties chat, agent and monitor together. It is driven by a
// single goroutine.
type Bridge struct {
	cfg     Config
	chat    Chat
	runner  Runner
	monitor Ticker
	health  *connwatch.Service
	backoff *connwatch.Backoff
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error

	announced bool
	onReply   func(*agent.Response)
}

// New creates a bridge. health records poll outcomes.
func New(cfg Config, chat Chat, runner Runner, monitor Ticker, health *connwatch.Service, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = 3
	}
	return &Bridge{
		cfg:     cfg,
		chat:    chat,
		runner:  runner,
		monitor: monitor,
		health:  health,
		backoff: connwatch.NewBackoff(cfg.Backoff),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// OnReply registers a callback invoked after every interactive reply.
func (b *Bridge) OnReply(f func(*agent.Response)) { b.onReply = f }

// Run polls until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("bridge started",
		"poll_interval", b.cfg.PollInterval,
		"poll_batch", b.cfg.PollBatch,
	)
	for {
		wait := b.Step(ctx)
		if err := b.sleep(ctx, wait); err != nil {
			b.logger.Info("bridge stopped")
			return nil
		}
	}
}

// Step runs one cycle and returns how long to wait before the next.
// On a poll failure the cycle ends early, without a monitor tick, and
// the wait follows the backoff schedule.
func (b *Bridge) Step(ctx context.Context) time.Duration {
	msgs, err := b.chat.Poll(ctx, b.cfg.PollBatch)
	transition := connwatch.Unchanged
	if b.health != nil {
		transition = b.health.Observe(err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		wait := b.backoff.Failure()
		level := slog.LevelWarn
		if errors.Is(err, discord.ErrNotConfigured) {
			level = slog.LevelDebug
		}
		b.logger.Log(ctx, level, "poll failed",
			"error", err,
			"failures", b.backoff.Failures(),
			"retry_in", wait,
		)
		return wait
	}
	if b.backoff.Failures() > 0 {
		b.logger.Info("poll recovered", "after_failures", b.backoff.Failures())
	}
	b.backoff.Success()

	if transition == connwatch.Up && b.cfg.Announce && !b.announced {
		b.announced = true
		if err := b.chat.Send(ctx, prompts.OnlineNotice(b.cfg.Version)); err != nil {
			b.logger.Warn("failed to send online notice", "error", err)
		}
	}

	for _, m := range msgs {
		resp := b.runner.Run(ctx, m.Content)
		b.logger.Info("reply ready",
			"message_id", m.ID,
			"request_id", resp.RequestID,
			"finish", resp.FinishReason,
			"rounds", resp.Rounds,
			"elapsed", resp.Elapsed.Round(time.Millisecond),
		)
		if err := b.chat.Send(ctx, resp.Content); err != nil {
			b.logger.Error("failed to send reply", "message_id", m.ID, "error", err)
		}
		if b.onReply != nil {
			b.onReply(resp)
		}
	}

	if b.monitor != nil {
		if report, ok := b.monitor.Tick(ctx); ok {
			if err := b.chat.Send(ctx, report); err != nil {
				b.logger.Error("failed to send monitor report", "error", err)
			}
		}
	}
	return b.cfg.PollInterval
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

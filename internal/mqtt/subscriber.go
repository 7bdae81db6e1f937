package mqtt

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Injector receives simulated inputs. *hardware.Board satisfies it.
type Injector interface {
	SetAnalog(pin, raw int) error
	SetInput(pin, level int) error
}

// Default inbound rate: at most this many injections per interval.
const (
	DefaultInboundLimit    = 50
	DefaultInboundInterval = time.Second
)

// Subscriber routes <base>/adc/<pin>/set and <base>/gpio/<pin>/set
// messages into an [Injector].
type Subscriber struct {
	target  Injector
	limiter *messageRateLimiter
	logger  *slog.Logger
}

// NewSubscriber creates a Subscriber with the default inbound limit.
func NewSubscriber(target Injector, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		target:  target,
		limiter: newMessageRateLimiter(DefaultInboundLimit, DefaultInboundInterval, logger),
		logger:  logger,
	}
}

// Topics returns the subscription filters under base.
func (s *Subscriber) Topics(base string) []string {
	return []string{base + "/adc/+/set", base + "/gpio/+/set"}
}

// Handle applies one inbound message. It reports whether the message
// was applied; malformed topics, payloads and rejected values are
// logged and dropped.
func (s *Subscriber) Handle(topic string, payload []byte) bool {
	if !s.limiter.allow() {
		return false
	}

	kind, pin, ok := parseSetTopic(topic)
	if !ok {
		s.logger.Debug("mqtt message ignored", "topic", topic, "payload_size", len(payload))
		return false
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		s.logger.Warn("mqtt injection payload not an integer",
			"topic", topic, "payload", string(payload))
		return false
	}

	switch kind {
	case "adc":
		err = s.target.SetAnalog(pin, value)
	case "gpio":
		err = s.target.SetInput(pin, value)
	}
	if err != nil {
		s.logger.Warn("mqtt injection rejected", "topic", topic, "value", value, "error", err)
		return false
	}
	s.logger.Debug("mqtt injection applied", "kind", kind, "pin", pin, "value", value)
	return true
}

// parseSetTopic extracts kind and pin from ".../<kind>/<pin>/set".
func parseSetTopic(topic string) (kind string, pin int, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "set" {
		return "", 0, false
	}
	kind = parts[len(parts)-3]
	if kind != "adc" && kind != "gpio" {
		return "", 0, false
	}
	pin, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || pin < 0 {
		return "", 0, false
	}
	return kind, pin, true
}

// messageRateLimiter tracks inbound message rates and drops messages
// when the rate exceeds the configured threshold.
type messageRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newMessageRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *messageRateLimiter {
	return &messageRateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// start resets the counter every interval until ctx is cancelled,
// warning when anything was dropped.
func (r *messageRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := r.count.Swap(0)
			if dropped := r.dropped.Swap(0); dropped > 0 {
				r.logger.Warn("mqtt messages dropped due to rate limit",
					"received", count,
					"dropped", dropped,
					"interval", r.interval.String(),
					"limit", r.limit,
				)
			}
		}
	}
}

func (r *messageRateLimiter) allow() bool {
	if r.count.Add(1) > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}

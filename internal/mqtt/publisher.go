package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/seedclaw/seedclaw/internal/config"
	"github.com/seedclaw/seedclaw/internal/hardware"
)

// StatsSource provides runtime data for sensor state publishing. The
// concrete adapter is wired in main.go so this package does not depend
// on the agent or the chat bridge.
type StatsSource interface {
	Uptime() time.Duration
	Version() string
	// Model returns the active LLM model name.
	Model() string
	RuleCount() int
	// AutoInterval returns the autonomous check interval in poll
	// cycles; 0 means disabled.
	AutoInterval() int
	// LastReply returns when the most recent reply was produced and
	// how long it took. The time is zero before the first reply.
	LastReply() (time.Time, time.Duration)
	DiscordReady() bool
	Pins() hardware.Status
}

// Publisher manages the MQTT connection, publishes HA discovery config
// messages on (re-)connect, and runs a periodic loop that pushes
// sensor state updates to the broker.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	tokens     *DailyTokens
	stats      StatsSource
	inbound    *Subscriber
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop. A nil inbound disables the
// injection subscriptions.
func New(cfg config.MQTTConfig, instanceID string, tokens *DailyTokens, stats StatsSource, inbound *Subscriber, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		tokens:     tokens,
		stats:      stats,
		inbound:    inbound,
		logger:     logger,
	}
}

// Start connects to the MQTT broker and begins the periodic publish
// loop. It blocks until ctx is cancelled. On every (re-)connect it
// publishes discovery configs, a birth message and its subscriptions.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
			p.subscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "seedclaw-" + p.cfg.DeviceName,
		},
	}

	if p.inbound != nil {
		pahoCfg.ClientConfig.OnPublishReceived = []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				p.inbound.Handle(pr.Packet.Topic, pr.Packet.Payload)
				return true, nil
			},
		}
		go p.inbound.limiter.start(ctx)
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes "offline" and disconnects. ctx bounds both.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return "seedclaw/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) attributesTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/attributes"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/" + p.cfg.DeviceName + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	entitySuffix string
	config       SensorConfig
}

func (p *Publisher) sensor(entity, name, icon string) SensorConfig {
	return SensorConfig{
		Name:              p.device.Name + " " + name,
		UniqueID:          p.instanceID + "_" + entity,
		StateTopic:        p.stateTopic(entity),
		AvailabilityTopic: p.availabilityTopic(),
		Device:            p.device,
		Icon:              icon,
	}
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	diagnostic := func(c SensorConfig) SensorConfig {
		c.EntityCategory = "diagnostic"
		return c
	}
	measurement := func(c SensorConfig, unit string) SensorConfig {
		c.StateClass = "measurement"
		c.UnitOfMeasurement = unit
		return c
	}

	tokens := p.sensor("tokens_today", "Tokens Today", "mdi:counter")
	tokens.StateClass = "total_increasing"
	tokens.UnitOfMeasurement = "tokens"

	pins := p.sensor("pins", "Pins In Use", "mdi:chip")
	pins.JsonAttributesTopic = p.attributesTopic("pins")
	pins.StateClass = "measurement"

	return []sensorDef{
		{"uptime", diagnostic(p.sensor("uptime", "Uptime", "mdi:clock-outline"))},
		{"version", diagnostic(p.sensor("version", "Version", "mdi:tag"))},
		{"model", diagnostic(p.sensor("model", "Model", "mdi:brain"))},
		{"rules", measurement(p.sensor("rules", "Rules", "mdi:format-list-checks"), "")},
		{"auto_interval", measurement(p.sensor("auto_interval", "Check Interval", "mdi:timer-sync"), "cycles")},
		{"tokens_today", tokens},
		{"last_reply", diagnostic(p.sensor("last_reply", "Last Reply", "mdi:clock-check"))},
		{"reply_latency", measurement(p.sensor("reply_latency", "Reply Latency", "mdi:timer-outline"), "ms")},
		{"discord", diagnostic(p.sensor("discord", "Discord", "mdi:chat"))},
		{"pins", pins},
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic("sensor", s.entitySuffix)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload",
				"entity", s.entitySuffix, "error", err)
			continue
		}

		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed",
				"entity", s.entitySuffix, "topic", topic, "error", err)
		} else {
			p.logger.Debug("mqtt discovery published",
				"entity", s.entitySuffix, "topic", topic)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

func (p *Publisher) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	if p.inbound == nil {
		return
	}
	var subs []paho.SubscribeOptions
	for _, topic := range p.inbound.Topics(p.baseTopic()) {
		subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: 0})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		p.logger.Warn("mqtt subscribe failed", "error", err)
		return
	}
	p.logger.Info("mqtt subscribed", "topics", len(subs))
}

// --- Periodic state loop ---

func (p *Publisher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()

	p.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

// states renders every sensor value plus the retained attribute
// payloads, keyed by topic.
func (p *Publisher) states() map[string][]byte {
	out := make(map[string][]byte)
	set := func(entity, value string) {
		out[p.stateTopic(entity)] = []byte(value)
	}

	set("uptime", p.stats.Uptime().Truncate(time.Second).String())
	set("version", p.stats.Version())
	set("model", p.stats.Model())
	set("rules", strconv.Itoa(p.stats.RuleCount()))
	set("auto_interval", strconv.Itoa(p.stats.AutoInterval()))

	input, output, _ := p.tokens.Snapshot()
	set("tokens_today", strconv.FormatInt(input+output, 10))

	at, latency := p.stats.LastReply()
	if at.IsZero() {
		set("last_reply", "never")
		set("reply_latency", "0")
	} else {
		set("last_reply", at.Format(time.RFC3339))
		set("reply_latency", strconv.FormatInt(latency.Milliseconds(), 10))
	}

	if p.stats.DiscordReady() {
		set("discord", "connected")
	} else {
		set("discord", "disconnected")
	}

	status := p.stats.Pins()
	set("pins", strconv.Itoa(len(status.Pins)))
	if attrs, err := json.Marshal(status); err == nil {
		out[p.attributesTopic("pins")] = attrs
	} else {
		p.logger.Error("mqtt marshal pin attributes", "error", err)
	}
	return out
}

func (p *Publisher) publishStates(ctx context.Context) {
	if p.cm == nil {
		return
	}

	states := p.states()
	for topic, value := range states {
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: value,
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt state publish failed",
				"topic", topic, "error", err)
		}
	}

	p.logger.Debug("mqtt sensor states published", "topics", len(states))
}

// Package discord connects the agent to a Discord text channel over
// the REST API. Inbound messages are polled with a persisted cursor;
// replies go out through a webhook when one is configured, otherwise
// as the bot user.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/seedclaw/seedclaw/internal/httpkit"
	"github.com/seedclaw/seedclaw/internal/opstate"
)

// MaxMessageLength is Discord's per-message character limit.
const MaxMessageLength = 2000

var (
	// ErrTransport wraps failures to reach Discord.
	ErrTransport = errors.New("discord transport error")
	// ErrNotConfigured is returned when the token or channel is unset.
	ErrNotConfigured = errors.New("discord not configured")
)

// Session is the part of *discordgo.Session the client uses.
type Session interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// SessionFactory opens a session for a bot token.
type SessionFactory func(token string) (Session, error)

// Credentials supplies the live connection settings. They may change
// between calls.
type Credentials interface {
	DiscordCredentials() (token, channelID, webhookURL string)
}

// CredentialsFunc adapts a function to Credentials.
type CredentialsFunc func() (token, channelID, webhookURL string)

// DiscordCredentials implements Credentials.
func (f CredentialsFunc) DiscordCredentials() (string, string, string) { return f() }

// Message is one inbound user message.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Author    string
	Content   string
	Timestamp time.Time
}

// Config tunes a Client.
type Config struct {
	Timeout       time.Duration
	MaxContent    int
	SendInterval  time.Duration
	SendRetries   int
	SendRetryWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxContent <= 0 {
		c.MaxContent = 512
	}
	if c.SendInterval <= 0 {
		c.SendInterval = time.Second
	}
	if c.SendRetries <= 0 {
		c.SendRetries = 3
	}
	if c.SendRetryWait <= 0 {
		c.SendRetryWait = 2 * time.Second
	}
}

// Client polls and posts to one channel. Poll and Send may be called
// from different goroutines.
type Client struct {
	cfg     Config
	creds   Credentials
	state   *opstate.Store
	factory SessionFactory
	logger  *slog.Logger
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error

	mu      sync.Mutex
	token   string
	session Session
	selfID  string
}

// NewClient returns a client. state persists the poll cursor and may
// be nil. A nil factory uses NewSession.
func NewClient(cfg Config, creds Credentials, state *opstate.Store, factory SessionFactory, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		timeout := cfg.Timeout
		factory = func(token string) (Session, error) { return NewSession(token, timeout) }
	}
	return &Client{
		cfg:     cfg,
		creds:   creds,
		state:   state,
		factory: factory,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(cfg.SendInterval), 1),
		sleep:   sleepCtx,
	}
}

// NewSession opens a REST-only bot session. Rate limits are surfaced
// as errors instead of being waited out inside the library.
func NewSession(token string, timeout time.Duration) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.ShouldRetryOnRateLimit = false
	s.MaxRestRetries = 1
	s.Client = httpkit.NewClient(httpkit.WithTimeout(timeout))
	return s, nil
}

// currentSession returns a session for the configured token, reopening
// it when the token has changed.
func (c *Client) currentSession() (Session, string, error) {
	token, channelID, _ := c.creds.DiscordCredentials()
	if token == "" || channelID == "" {
		return nil, "", ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.token == token {
		return c.session, channelID, nil
	}
	s, err := c.factory(token)
	if err != nil {
		return nil, "", err
	}
	c.session, c.token, c.selfID = s, token, ""
	return s, channelID, nil
}

// self resolves and caches the bot's own user ID. Failures are not
// fatal; bot-authored messages are skipped regardless.
func (c *Client) self(ctx context.Context, s Session) string {
	c.mu.Lock()
	id := c.selfID
	c.mu.Unlock()
	if id != "" {
		return id
	}
	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil || u == nil {
		c.logger.Debug("could not resolve own user id", "error", err)
		return ""
	}
	c.mu.Lock()
	c.selfID = u.ID
	c.mu.Unlock()
	return u.ID
}

func cursorKey(channelID string) string { return "cursor." + channelID }

func (c *Client) loadCursor(channelID string) string {
	if c.state == nil {
		return ""
	}
	v, err := c.state.Get(opstate.NamespaceDiscord, cursorKey(channelID))
	if err != nil {
		c.logger.Warn("failed to load discord cursor", "error", err)
		return ""
	}
	return v
}

func (c *Client) saveCursor(channelID, id string) {
	if c.state == nil {
		return
	}
	if err := c.state.Set(opstate.NamespaceDiscord, cursorKey(channelID), id); err != nil {
		c.logger.Warn("failed to persist discord cursor", "cursor", id, "error", err)
	}
}

// Poll returns up to limit new user messages, oldest first. Messages
// from bots, webhooks and the bot itself, and empty messages, are
// skipped but still advance the cursor.
//
// The first poll of a channel only records the newest message ID, so
// history is never replayed. A rate limit is waited out (1s to 60s) and
// yields no messages, as do authorization failures, which are logged.
func (c *Client) Poll(ctx context.Context, limit int) ([]Message, error) {
	s, channelID, err := c.currentSession()
	if err != nil {
		return nil, err
	}
	limit = max(1, min(limit, 100))

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cursor := c.loadCursor(channelID)
	if cursor == "" {
		latest, err := s.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(reqCtx))
		if err != nil {
			return nil, c.pollError(ctx, err)
		}
		if len(latest) > 0 {
			c.saveCursor(channelID, latest[0].ID)
			c.logger.Info("discord cursor initialized", "channel", channelID, "cursor", latest[0].ID)
		}
		return nil, nil
	}

	raw, err := s.ChannelMessages(channelID, limit, "", cursor, "", discordgo.WithContext(reqCtx))
	if err != nil {
		return nil, c.pollError(ctx, err)
	}
	slices.SortFunc(raw, func(a, b *discordgo.Message) int {
		return compareSnowflakes(a.ID, b.ID)
	})

	selfID := c.self(reqCtx, s)
	var out []Message
	next := cursor
	for _, m := range raw {
		if m == nil || compareSnowflakes(m.ID, next) <= 0 {
			continue
		}
		next = m.ID
		if skip(m, selfID) {
			continue
		}
		out = append(out, Message{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			AuthorID:  m.Author.ID,
			Author:    m.Author.Username,
			Content:   bound(m.Content, c.cfg.MaxContent),
			Timestamp: m.Timestamp,
		})
		c.logger.Info("discord message received", "author", m.Author.Username, "id", m.ID, "len", len(m.Content))
	}
	if next != cursor {
		c.saveCursor(channelID, next)
	}
	return out, nil
}

func skip(m *discordgo.Message, selfID string) bool {
	switch {
	case m.Author == nil, m.Author.Bot, m.WebhookID != "":
		return true
	case selfID != "" && m.Author.ID == selfID:
		return true
	}
	return strings.TrimSpace(m.Content) == ""
}

func (c *Client) pollError(ctx context.Context, err error) error {
	if wait, ok := rateLimited(err); ok {
		wait = max(time.Second, min(wait, 60*time.Second))
		c.logger.Warn("discord rate limited", "retry_after", wait)
		_ = c.sleep(ctx, wait)
		return nil
	}
	if status := httpStatus(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.logger.Error("discord rejected credentials", "status", status, "error", err)
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// Send posts text, split into Discord-sized chunks. Chunks are paced
// and each is retried on rate limiting.
func (c *Client) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s, channelID, err := c.currentSession()
	if err != nil {
		return err
	}
	_, _, webhook := c.creds.DiscordCredentials()
	hookID, hookToken, err := ParseWebhookURL(webhook)
	if webhook != "" && err != nil {
		c.logger.Warn("ignoring invalid webhook url", "error", err)
	}
	useHook := err == nil && hookID != ""

	for i, chunk := range Split(text, MaxMessageLength) {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.sendChunk(ctx, s, channelID, hookID, hookToken, useHook, chunk); err != nil {
			return fmt.Errorf("send chunk %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, s Session, channelID, hookID, hookToken string, useHook bool, chunk string) error {
	for attempt := 1; ; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		var err error
		if useHook {
			_, err = s.WebhookExecute(hookID, hookToken, false, &discordgo.WebhookParams{Content: chunk}, discordgo.WithContext(reqCtx))
		} else {
			_, err = s.ChannelMessageSend(channelID, chunk, discordgo.WithContext(reqCtx))
		}
		cancel()
		if err == nil {
			c.logger.Debug("discord message sent", "webhook", useHook, "len", len(chunk))
			return nil
		}

		if _, ok := rateLimited(err); !ok || attempt > c.cfg.SendRetries {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		wait := time.Duration(attempt) * c.cfg.SendRetryWait
		c.logger.Warn("discord send rate limited, retrying", "attempt", attempt, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// ParseWebhookURL extracts the ID and token from a webhook URL of the
// form https://discord.com/api/webhooks/{id}/{token}. An empty URL
// returns empty values and no error.
func ParseWebhookURL(raw string) (id, token string, err error) {
	if raw == "" {
		return "", "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "webhooks" && i+2 < len(parts) {
			id, token = parts[i+1], parts[i+2]
			break
		}
	}
	if id == "" || token == "" {
		return "", "", fmt.Errorf("webhook url %q has no id/token", u.Redacted())
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", "", fmt.Errorf("webhook id %q is not a snowflake", id)
	}
	return id, token, nil
}

// Split breaks text into chunks of at most limit characters, cutting
// at the last newline in a window when there is one.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes.
func byteOffset(s string, n int) int {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

func rateLimited(err error) (time.Duration, bool) {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return rl.RetryAfter, true
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusTooManyRequests {
		return httpkit.RetryAfter(rest.Response.Header, time.Second), true
	}
	return 0, false
}

func httpStatus(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}

// compareSnowflakes orders Discord IDs numerically. Unparseable IDs
// fall back to length-then-lexical order, which matches for decimals.
func compareSnowflakes(a, b string) int {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func bound(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
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

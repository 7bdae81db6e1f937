// Package settings layers runtime-editable values over config.yaml.
// Anything set from the admin console (API key, model, system prompt,
// Discord credentials) is stored in opstate and wins over the file;
// clearing it falls back to the configured default.
package settings

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/seedclaw/seedclaw/internal/opstate"
)

// Key names a runtime setting.
type Key string

// Known settings.
const (
	APIKey         Key = "api_key"
	Model          Key = "model"
	SystemPrompt   Key = "system_prompt"
	DiscordToken   Key = "discord_token"
	DiscordChannel Key = "discord_channel"
	DiscordWebhook Key = "discord_webhook"
)

var secret = map[Key]bool{
	APIKey:         true,
	DiscordToken:   true,
	DiscordWebhook: true,
}

// maxValueLen bounds every value; the system prompt is the longest.
const maxValueLen = 1024

// Store resolves settings. It is safe for concurrent use.
type Store struct {
	state    *opstate.Store
	defaults map[Key]string
	logger   *slog.Logger
}

// New creates a Store. defaults supplies the config.yaml values.
func New(state *opstate.Store, defaults map[Key]string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	d := make(map[Key]string, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Store{state: state, defaults: d, logger: logger}
}

// Get returns the override for k, or its default.
func (s *Store) Get(k Key) string {
	v, err := s.state.Get(opstate.NamespaceSettings, string(k))
	if err != nil {
		s.logger.Warn("settings read failed, using default", "key", k, "error", err)
		return s.defaults[k]
	}
	if v == "" {
		return s.defaults[k]
	}
	return v
}

// Set stores an override for k.
func (s *Store) Set(k Key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s: empty value", k)
	}
	if len(value) > maxValueLen {
		return fmt.Errorf("%s: value exceeds %d bytes", k, maxValueLen)
	}
	if err := s.state.Set(opstate.NamespaceSettings, string(k), value); err != nil {
		return err
	}
	s.logger.Info("setting updated", "key", k)
	return nil
}

// Reset removes the override for k.
func (s *Store) Reset(k Key) error {
	return s.state.Delete(opstate.NamespaceSettings, string(k))
}

// Display returns k's effective value for human output, masking
// secrets.
func (s *Store) Display(k Key) string {
	v := s.Get(k)
	if v == "" {
		return "(not set)"
	}
	if secret[k] {
		return Mask(v)
	}
	return v
}

// Keys returns every known key in stable order.
func Keys() []Key {
	keys := []Key{APIKey, Model, SystemPrompt, DiscordToken, DiscordChannel, DiscordWebhook}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Mask keeps the first four characters of a secret.
func Mask(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****"
}

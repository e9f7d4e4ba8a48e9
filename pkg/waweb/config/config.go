// Package config loads daemon configuration from YAML with environment
// variable expansion, .env support and OS-keyring secret resolution.
package config

import (
	"fmt"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/session"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/store"
)

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// GatewayConfig configures the HTTP API.
type GatewayConfig struct {
	// Address is the listen address, e.g. ":8080".
	Address string `yaml:"address"`

	// AuthToken protects the API. Empty disables auth (loopback only is
	// advisable then). A bcrypt hash (starting with "$2") is accepted and
	// compared instead of the plaintext.
	AuthToken string `yaml:"auth_token"`
}

// Config is the root configuration.
type Config struct {
	Session   session.Config         `yaml:"session"`
	Dispatch  message.DispatchConfig `yaml:"dispatch"`
	Webhook   message.WebhookConfig  `yaml:"webhook"`
	Store     store.Config           `yaml:"store"`
	Retention store.RetentionConfig  `yaml:"retention"`
	Gateway   GatewayConfig          `yaml:"gateway"`
	Logging   LoggingConfig          `yaml:"logging"`
}

// DefaultConfig returns a fully-populated default configuration.
func DefaultConfig() *Config {
	return &Config{
		Session:   session.DefaultConfig(),
		Store:     store.DefaultConfig(),
		Retention: store.DefaultRetentionConfig(),
		Gateway:   GatewayConfig{Address: ":8080"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Session.Dir == "" {
		return fmt.Errorf("session.dir is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Gateway.Address == "" {
		return fmt.Errorf("gateway.address is required")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config configures the sandbox entity server.
type Config struct {
	ListenAddr string `env:"SANDBOX_LISTEN_ADDR" env-default:"127.0.0.1:47200"`

	// APIKey, when set, must match X-API-Key on every request.
	APIKey     string `env:"ENTITY_SERVER_API_KEY"`
	HMACSecret string `env:"ENTITY_SERVER_HMAC_SECRET"`

	// MagicHex is the packet prefix written in front of encrypted responses.
	MagicHex string `env:"ENTITY_PACKET_MAGIC" env-default:"45535031"`
	Magic    []byte

	// EncryptResponses sends authenticated responses as secure packets.
	EncryptResponses bool `env:"SANDBOX_ENCRYPT_RESPONSES" env-default:"false"`

	// ReplayWindow bounds timestamp skew in both directions. Nonces are
	// remembered for twice as long.
	ReplayWindow time.Duration `env:"SANDBOX_REPLAY_WINDOW" env-default:"5m"`

	// TransactionTTL expires transactions that are never committed.
	TransactionTTL time.Duration `env:"SANDBOX_TRANSACTION_TTL" env-default:"10m"`

	// RedisAddr switches the nonce store from in-process memory to Redis so
	// several sandbox instances share replay protection.
	RedisAddr string `env:"SANDBOX_REDIS_ADDR"`
}

func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and decodes MagicHex into Magic when Magic
// is not already set.
func (c *Config) Validate() error {
	if c.HMACSecret == "" {
		return fmt.Errorf("ENTITY_SERVER_HMAC_SECRET is required")
	}
	if len(c.Magic) == 0 {
		magic, err := hex.DecodeString(strings.TrimSpace(c.MagicHex))
		if err != nil {
			return fmt.Errorf("ENTITY_PACKET_MAGIC must be hex, got %q", c.MagicHex)
		}
		c.Magic = magic
	}
	if len(c.Magic) == 0 {
		return fmt.Errorf("ENTITY_PACKET_MAGIC must not be empty")
	}
	if c.ReplayWindow <= 0 {
		return fmt.Errorf("SANDBOX_REPLAY_WINDOW must be positive, got %s", c.ReplayWindow)
	}
	if c.TransactionTTL <= 0 {
		return fmt.Errorf("SANDBOX_TRANSACTION_TTL must be positive, got %s", c.TransactionTTL)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("SANDBOX_LISTEN_ADDR must not be empty")
	}
	return nil
}

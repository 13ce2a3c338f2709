package entity

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvBaseURL    = "ENTITY_SERVER_URL"
	EnvAPIKey     = "ENTITY_SERVER_API_KEY"
	EnvHMACSecret = "ENTITY_SERVER_HMAC_SECRET"
	EnvTimeout    = "ENTITY_SERVER_TIMEOUT"
	EnvMagicLen   = "ENTITY_PACKET_MAGIC_LEN"
	EnvMagic      = "ENTITY_PACKET_MAGIC"
)

type envConfig struct {
	BaseURL    string        `env:"ENTITY_SERVER_URL" env-default:"http://localhost:47200"`
	APIKey     string        `env:"ENTITY_SERVER_API_KEY"`
	HMACSecret string        `env:"ENTITY_SERVER_HMAC_SECRET"`
	Timeout    time.Duration `env:"ENTITY_SERVER_TIMEOUT" env-default:"10s"`
	MagicLen   int           `env:"ENTITY_PACKET_MAGIC_LEN" env-default:"4"`
	Magic      string        `env:"ENTITY_PACKET_MAGIC"`
}

// ConfigFromEnv fills every zero field of explicit from the ENTITY_* environment
// variables. Non-zero fields of explicit always win; a non-nil MagicLen wins
// even when it points to zero.
func ConfigFromEnv(explicit Config) (Config, error) {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, fmt.Errorf("entity: read environment: %w", err)
	}

	cfg := explicit
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = env.BaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = env.APIKey
	}
	if cfg.HMACSecret == "" {
		cfg.HMACSecret = env.HMACSecret
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = env.Timeout
	}
	if cfg.MagicLen == nil {
		cfg.MagicLen = Int(env.MagicLen)
	}
	if len(cfg.ExpectedMagic) == 0 && env.Magic != "" {
		magic, err := hex.DecodeString(strings.TrimSpace(env.Magic))
		if err != nil {
			return Config{}, fmt.Errorf("entity: %s must be hex: %w", EnvMagic, err)
		}
		cfg.ExpectedMagic = magic
	}
	return cfg, nil
}

// NewFromEnv constructs a Client from the environment, see ConfigFromEnv.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := ConfigFromEnv(Config{})
	if err != nil {
		return nil, err
	}
	return NewClient(cfg, opts...)
}

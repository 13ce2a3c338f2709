package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Layr-Labs/entity-client/pkg/entity"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvFileVar names a dotenv file loaded before flags are parsed.
const EnvFileVar = "ENTITY_ENV_FILE"

type Config struct {
	ServerURL  string
	APIKey     string
	HMACSecret string
	Timeout    time.Duration
	MagicLen   int
	MagicHex   string
	LogLevel   string
	Retry      time.Duration
}

func NewConfigFromCLI(c *cli.Context) *Config {
	return &Config{
		ServerURL:  c.String(ServerURLFlag.Name),
		APIKey:     c.String(APIKeyFlag.Name),
		HMACSecret: c.String(HMACSecretFlag.Name),
		Timeout:    c.Duration(TimeoutFlag.Name),
		MagicLen:   c.Int(MagicLenFlag.Name),
		MagicHex:   c.String(MagicFlag.Name),
		LogLevel:   c.String(LogLevelFlag.Name),
		Retry:      c.Duration(RetryFlag.Name),
	}
}

// EntityConfig converts the flags into a client configuration.
func (c *Config) EntityConfig() (entity.Config, error) {
	cfg := entity.Config{
		BaseURL:    c.ServerURL,
		APIKey:     c.APIKey,
		HMACSecret: c.HMACSecret,
		Timeout:    c.Timeout,
		MagicLen:   entity.Int(c.MagicLen),
	}
	if magic := strings.TrimSpace(c.MagicHex); magic != "" {
		b, err := hex.DecodeString(magic)
		if err != nil {
			return entity.Config{}, fmt.Errorf("--%s must be hex: %w", MagicFlag.Name, err)
		}
		cfg.ExpectedMagic = b
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// that are already set. A missing default file is not an error.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// NewLogger builds a zap logger writing to stderr, so stdout carries only
// command output.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	var zc zap.Config
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

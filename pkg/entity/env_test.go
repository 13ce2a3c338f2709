package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://entities.internal:8443")
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvHMACSecret, "env-secret")
	t.Setenv(EnvTimeout, "3s")
	t.Setenv(EnvMagicLen, "6")
	t.Setenv(EnvMagic, "")

	cfg, err := ConfigFromEnv(Config{APIKey: "explicit-key"})
	require.NoError(t, err)
	assert.Equal(t, "https://entities.internal:8443", cfg.BaseURL)
	assert.Equal(t, "explicit-key", cfg.APIKey, "explicit values win over the environment")
	assert.Equal(t, "env-secret", cfg.HMACSecret)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	require.NotNil(t, cfg.MagicLen)
	assert.Equal(t, 6, *cfg.MagicLen)
	assert.Empty(t, cfg.ExpectedMagic)
}

func TestConfigFromEnv_Magic(t *testing.T) {
	t.Setenv(EnvHMACSecret, "s")
	t.Setenv(EnvMagic, "45535031")

	cfg, err := ConfigFromEnv(Config{})
	require.NoError(t, err)
	assert.Equal(t, []byte("ESP1"), cfg.ExpectedMagic)

	t.Setenv(EnvMagic, "zz")
	_, err = ConfigFromEnv(Config{})
	assert.Error(t, err)
}

func TestNewFromEnv_MissingSecret(t *testing.T) {
	t.Setenv(EnvHMACSecret, "")
	t.Setenv(EnvMagic, "")
	_, err := NewFromEnv()
	assert.ErrorIs(t, err, ErrSignatureContext)
}

func TestConfigFromEnv_ZeroMagicLen(t *testing.T) {
	t.Setenv(EnvHMACSecret, "s")
	t.Setenv(EnvMagic, "")
	t.Setenv(EnvMagicLen, "0")

	cfg, err := ConfigFromEnv(Config{})
	require.NoError(t, err)
	require.NotNil(t, cfg.MagicLen)
	assert.Equal(t, 0, *cfg.MagicLen)

	cfg, err = ConfigFromEnv(Config{MagicLen: Int(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, *cfg.MagicLen, "explicit values win over the environment")
}

func TestConfig_MagicLenDefaults(t *testing.T) {
	cfg := Config{HMACSecret: "s"}.withDefaults()
	require.NotNil(t, cfg.MagicLen)
	assert.Equal(t, DefaultMagicLen, *cfg.MagicLen)

	cfg = Config{HMACSecret: "s", MagicLen: Int(0)}.withDefaults()
	assert.Equal(t, 0, *cfg.MagicLen)
	assert.NoError(t, cfg.validate())

	cfg = Config{HMACSecret: "s", MagicLen: Int(-1)}.withDefaults()
	assert.Error(t, cfg.validate())
}

package entity

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "http://localhost:47200"
	DefaultTimeout  = 10 * time.Second
	DefaultMagicLen = 4
)

// Config is the immutable client configuration. The client keeps its own copy;
// changing a Config after NewClient has no effect on the client.
type Config struct {
	BaseURL    string
	APIKey     string
	HMACSecret string
	Timeout    time.Duration

	// MagicLen is the length of the opaque prefix the server writes in front
	// of every secure packet (server-side packet_magic_len). Nil means
	// DefaultMagicLen; zero is a valid length.
	MagicLen *int

	// ExpectedMagic, if set, must equal the packet prefix byte for byte;
	// packets with any other prefix are rejected. Its length overrides MagicLen.
	ExpectedMagic []byte
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case len(c.ExpectedMagic) > 0:
		c.MagicLen = Int(len(c.ExpectedMagic))
		c.ExpectedMagic = append([]byte(nil), c.ExpectedMagic...)
	case c.MagicLen == nil:
		c.MagicLen = Int(DefaultMagicLen)
	default:
		c.MagicLen = Int(*c.MagicLen)
	}
	return c
}

// Int returns a pointer to v, for optional fields such as Config.MagicLen.
func Int(v int) *int {
	return &v
}

func (c Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("entity: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("entity: base URL must be http(s), got %q", c.BaseURL)
	}
	if c.HMACSecret == "" {
		return fmt.Errorf("%w: HMAC secret is required", ErrSignatureContext)
	}
	if c.MagicLen != nil && *c.MagicLen < 0 {
		return fmt.Errorf("entity: magic length must not be negative, got %d", *c.MagicLen)
	}
	return nil
}

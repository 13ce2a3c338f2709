package cli

import (
	"time"

	"github.com/Layr-Labs/entity-client/pkg/entity"
	"github.com/urfave/cli/v2"
)

var (
	ServerURLFlag = &cli.StringFlag{
		Name:    "server-url",
		Usage:   "Entity server base URL (e.g. http://localhost:47200)",
		Value:   entity.DefaultBaseURL,
		EnvVars: []string{entity.EnvBaseURL},
	}

	APIKeyFlag = &cli.StringFlag{
		Name:    "api-key",
		Usage:   "API key sent as X-API-Key",
		EnvVars: []string{entity.EnvAPIKey},
	}

	HMACSecretFlag = &cli.StringFlag{
		Name:     "hmac-secret",
		Usage:    "Shared secret for request signing and packet decryption",
		EnvVars:  []string{entity.EnvHMACSecret},
		Required: true,
	}

	TimeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Usage:   "Per-request timeout",
		Value:   entity.DefaultTimeout,
		EnvVars: []string{entity.EnvTimeout},
	}

	MagicLenFlag = &cli.IntFlag{
		Name:    "packet-magic-len",
		Usage:   "Length of the secure packet prefix",
		Value:   entity.DefaultMagicLen,
		EnvVars: []string{entity.EnvMagicLen},
	}

	MagicFlag = &cli.StringFlag{
		Name:    "packet-magic",
		Usage:   "Expected secure packet prefix, hex encoded; packets with another prefix are rejected",
		EnvVars: []string{entity.EnvMagic},
	}

	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "Log level (debug, info, warn, error)",
		EnvVars: []string{"LOG_LEVEL"},
	}

	RetryFlag = &cli.DurationFlag{
		Name:    "retry",
		Usage:   "Retry read commands on network errors for up to this long (0 disables)",
		Value:   30 * time.Second,
		EnvVars: []string{"ENTITY_CLIENT_RETRY"},
	}

	PageFlag = &cli.IntFlag{
		Name:  "page",
		Usage: "Page number, starting at 1",
		Value: 1,
	}

	LimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Rows per page",
	}

	OrderByFlag = &cli.StringFlag{
		Name:  "order-by",
		Usage: "Sort field; prefix with '-' for descending",
	}

	FilterFlag = &cli.StringFlag{
		Name:  "filter",
		Usage: `JSON array of conditions, e.g. '[{"field":"status","op":"eq","value":"active"}]'; "-" reads stdin`,
	}

	DataFlag = &cli.StringFlag{
		Name:     "data",
		Usage:    `JSON object to submit; "-" reads stdin, "@file" reads a file`,
		Required: true,
	}

	TransactionFlag = &cli.StringFlag{
		Name:  "tx",
		Usage: "Transaction ID to queue the operation in",
	}

	HardFlag = &cli.BoolFlag{
		Name:  "hard",
		Usage: "Remove the row instead of marking it deleted",
	}
)

// GlobalFlags are accepted by every command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ServerURLFlag,
		APIKeyFlag,
		HMACSecretFlag,
		TimeoutFlag,
		MagicLenFlag,
		MagicFlag,
		LogLevelFlag,
		RetryFlag,
	}
}

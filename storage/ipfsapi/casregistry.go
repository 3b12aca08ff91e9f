package ipfsapi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/casregistry"
)

const (
	flagAddr    = "ipfs-api-addr"
	flagTimeout = "ipfs-api-timeout"
	flagPin     = "ipfs-api-pin"
	flagOffline = "ipfs-api-offline"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs-api",
		Description: "Kubo daemon via its HTTP RPC API",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: []casregistry.Flag{
			{Name: flagAddr, Default: DefaultAddr, Usage: "Kubo RPC address (for --backend=ipfs-api)"},
			{Name: flagTimeout, Default: "30s", Usage: "Per-request timeout (for --backend=ipfs-api)"},
			{Name: flagPin, Default: "false", Usage: "Pin stored blocks (for --backend=ipfs-api)"},
			{Name: flagOffline, Default: "true", Usage: "Never fetch missing blocks from the network (for --backend=ipfs-api)"},
		},
		Open: func(ctx context.Context, settings map[string]string) (storage.CAS, func() error, error) {
			timeout, err := time.ParseDuration(settings[flagTimeout])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --%s: %w", flagTimeout, err)
			}
			pin, err := strconv.ParseBool(settings[flagPin])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --%s: %w", flagPin, err)
			}
			offline, err := strconv.ParseBool(settings[flagOffline])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --%s: %w", flagOffline, err)
			}

			c := New(Options{Addr: settings[flagAddr], Timeout: timeout, Pin: pin, Offline: offline})
			if err := c.Ping(ctx); err != nil {
				return nil, nil, err
			}
			return c, nil, nil
		},
	})
}

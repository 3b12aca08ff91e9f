package ipfs

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/casregistry"
)

const (
	flagBin  = "ipfs-bin"
	flagPath = "ipfs-path"
	flagPin  = "ipfs-pin"

	flagOffline = "ipfs-offline"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: []casregistry.Flag{
			{Name: flagBin, Default: "ipfs", Usage: "Path to the ipfs binary (for --backend=ipfs)"},
			{Name: flagPath, Usage: "IPFS_PATH of the repository; empty uses the ipfs default (for --backend=ipfs)"},
			{Name: flagPin, Default: "false", Usage: "Pin stored blocks (for --backend=ipfs)"},
			{Name: flagOffline, Default: "true", Usage: "Never fetch missing blocks from the network (for --backend=ipfs)"},
		},
		Open: func(_ context.Context, settings map[string]string) (storage.CAS, func() error, error) {
			pin, err := strconv.ParseBool(settings[flagPin])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --%s: %w", flagPin, err)
			}
			offline, err := strconv.ParseBool(settings[flagOffline])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid --%s: %w", flagOffline, err)
			}

			var env []string
			if p := settings[flagPath]; p != "" {
				env = append(os.Environ(), "IPFS_PATH="+p)
			}

			return New(Options{Bin: settings[flagBin], Env: env, Pin: pin, Offline: offline}), nil, nil
		},
	})
}

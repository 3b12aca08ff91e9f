package localfs

import (
	"context"
	"fmt"

	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/casregistry"
)

const flagDir = "localfs-dir"

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Flags: []casregistry.Flag{
			{Name: flagDir, Usage: "LocalFS CAS directory (for --backend=localfs)"},
		},
		Open: func(_ context.Context, settings map[string]string) (storage.CAS, func() error, error) {
			dir := settings[flagDir]
			if dir == "" {
				return nil, nil, fmt.Errorf("missing --%s", flagDir)
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}

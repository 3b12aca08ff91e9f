package grpccas

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/casregistry"
)

const (
	flagTarget      = "grpc-target"
	flagDialTimeout = "grpc-dial-timeout"
	flagTimeout     = "grpc-timeout"
	flagMaxMsgBytes = "grpc-max-msg-bytes"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to a lumen-casd daemon)",
		Usage:       casregistry.UsageCLI,
		Flags: []casregistry.Flag{
			{Name: flagTarget, Usage: "gRPC target host:port (for --backend=grpc)"},
			{Name: flagDialTimeout, Default: "5s", Usage: "Dial timeout (for --backend=grpc)"},
			{Name: flagTimeout, Default: "0s", Usage: "Per-RPC timeout (for --backend=grpc)"},
			{Name: flagMaxMsgBytes, Default: "0", Usage: "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults"},
		},
		Open: open,
	})
}

func open(ctx context.Context, settings map[string]string) (storage.CAS, func() error, error) {
	target := strings.TrimSpace(settings[flagTarget])
	if target == "" {
		return nil, nil, fmt.Errorf("missing --%s", flagTarget)
	}

	dialTimeout, err := time.ParseDuration(settings[flagDialTimeout])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --%s: %w", flagDialTimeout, err)
	}
	timeout, err := time.ParseDuration(settings[flagTimeout])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --%s: %w", flagTimeout, err)
	}
	maxMsg, err := strconv.Atoi(settings[flagMaxMsgBytes])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --%s: %w", flagMaxMsgBytes, err)
	}

	client, err := Dial(ctx, target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	return client, client.Close, nil
}

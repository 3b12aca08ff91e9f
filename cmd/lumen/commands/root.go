// Package commands implements the lumen command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/client"
	"lumen.dev/sdk/config"
	"lumen.dev/sdk/internal/cmdutil"
	"lumen.dev/sdk/internal/printer"
)

const (
	configFlagName = "config"
	configEnvKey   = "LUMEN_CONFIG"

	rpcURLFlagName        = "rpc-url"
	kernelFlagName        = "kernel"
	chainIDFlagName       = "chain-id"
	confirmationsFlagName = "confirmations"
	casConfigFlagName     = "cas-config"
	jsonFlagName          = "json"
)

var versionString = "dev"

// SetVersionInfo sets the version reported by --version.
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// Execute runs the lumen command line on os.Args.
// Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// openClient builds the client for a command. Tests replace it.
var openClient = func(ctx context.Context, cfg *config.Config) (*client.Client, error) {
	return client.New(ctx, cfg)
}

// NewRootCommand returns the lumen command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "lumen",
		Short: "lumen - context commitments for agents",
		Long: `lumen turns JSON payloads into canonical bytes and keccak-256 digests,
builds and submits 136-byte context commitments to the LUMEN kernel, and
verifies payloads against commitments seen on the ledger.`,
		Version:       versionString,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			printer.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
			cmdutil.SetLogLevels(cmdutil.GetUserSetOptionalVarFromString(cmd,
				cmdutil.LogLevelFlagName, cmdutil.LogLevelEnvKey), log.WARNING)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.String(configFlagName, "", "Path to a YAML config file. Alternatively, this can be set with the following environment variable: "+configEnvKey)
	pf.StringP(cmdutil.LogLevelFlagName, cmdutil.LogLevelFlagShorthand, "", cmdutil.LogLevelFlagUsage)
	pf.String(rpcURLFlagName, "", "Ledger JSON-RPC URL (env "+config.EnvRPCURL+")")
	pf.String(kernelFlagName, "", "Kernel contract address (env "+config.EnvKernelAddress+")")
	pf.Uint64(chainIDFlagName, 0, "Chain id (env "+config.EnvChainID+")")
	pf.Uint64(confirmationsFlagName, 0, "Confirmations to wait for after a write (env "+config.EnvConfirmations+")")
	pf.String(casConfigFlagName, "", "Payload archive config file (env "+config.EnvCASConfig+")")

	root.AddCommand(
		newCanonCmd(),
		newDigestCmd(),
		newCIDCmd(),
		newCommitCmd(),
		newVerifyCmd(),
		newNonceCmd(),
		newStatusCmd(),
		newWriteCmd(),
		newHeartbeatCmd(),
		newTopicsCmd(),
		newArchiveCmd(),
	)

	return root
}

// loadConfig resolves defaults < config file < environment < flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cmdutil.GetUserSetOptionalVarFromString(cmd, configFlagName, configEnvKey)

	overrides := &config.Config{}
	flags := cmd.Flags()
	if flags.Changed(rpcURLFlagName) {
		overrides.RPCURL, _ = flags.GetString(rpcURLFlagName)
	}
	if flags.Changed(kernelFlagName) {
		overrides.KernelAddress, _ = flags.GetString(kernelFlagName)
	}
	if flags.Changed(chainIDFlagName) {
		overrides.ChainID, _ = flags.GetUint64(chainIDFlagName)
	}
	if flags.Changed(confirmationsFlagName) {
		overrides.Confirmations, _ = flags.GetUint64(confirmationsFlagName)
	}
	if flags.Changed(casConfigFlagName) {
		overrides.CASConfig, _ = flags.GetString(casConfigFlagName)
	}

	cfg, err := config.Resolve(path, os.LookupEnv, overrides)
	if err != nil {
		return nil, printer.Error("Invalid configuration", err.Error(), []string{
			"Check the config file and the " + config.EnvRPCURL + ", " + config.EnvKernelAddress + " and " + config.EnvPrivateKey + " environment variables.",
		})
	}
	// Merge skips zero values, so an explicit --confirmations 0 is applied here.
	if flags.Changed(confirmationsFlagName) {
		cfg.Confirmations = overrides.Confirmations
	}
	return cfg, nil
}

func connect(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	c, err := openClient(cmd.Context(), cfg)
	if err != nil {
		return nil, printer.ErrorWithContext("Failed to connect to the ledger", err.Error(),
			map[string]string{"RPC URL": cfg.RPCURL, "Kernel": cfg.KernelAddress},
			[]string{"Check that the RPC endpoint is reachable and serves chain " + strconv.FormatUint(cfg.ChainID, 10) + "."})
	}
	return c, nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool(jsonFlagName)
	return v
}

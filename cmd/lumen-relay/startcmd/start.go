// Package startcmd implements the lumen-relay start command.
package startcmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/config"
	"lumen.dev/sdk/internal/cmdutil"
	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/internal/metrics"
	"lumen.dev/sdk/ledger"
	"lumen.dev/sdk/ledger/kernel"
	"lumen.dev/sdk/relay"
	"lumen.dev/sdk/relay/api"
	"lumen.dev/sdk/relay/memstore"
	"lumen.dev/sdk/relay/redisstore"
)

var logger = log.New("lumen-relay")

const (
	configFlagName  = "config"
	configEnvKey    = "LUMEN_CONFIG"
	configFlagUsage = "Path to a YAML config file. Alternatively, this can be set with the following environment variable: " + configEnvKey

	rpcURLFlagName    = "rpc-url"
	kernelFlagName    = "kernel"
	chainIDFlagName   = "chain-id"
	addrFlagName      = "addr"
	redisURLFlagName  = "redis-url"
	redisPrefixFlag   = "redis-prefix"
	startBlockFlag    = "start-block"
	backfillFlagName  = "backfill-blocks"
	pollIntervalFlag  = "poll-interval"
	chunkSizeFlagName = "chunk-size"
	chunkSizeEnvKey   = "LUMEN_RELAY_CHUNK_SIZE"
	shutdownFlagName  = "shutdown-timeout"
	shutdownEnvKey    = "LUMEN_RELAY_SHUTDOWN_TIMEOUT"

	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Source is the ledger view the relay needs.
type Source interface {
	ledger.EventSource
	Close()
}

// openSource dials the ledger. Tests replace it.
var openSource = func(ctx context.Context, cfg *config.Config) (Source, error) {
	c, err := kernel.Dial(ctx, cfg.RPCURL, cfg.Kernel(), cfg.ChainID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// New returns the lumen-relay root command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lumen-relay",
		Short: "Index ContextWritten events and serve them over HTTP",
		Long: `lumen-relay polls the kernel for ContextWritten events, stores them in Redis
(or memory when no Redis URL is set) and serves /health, /events, /topics and
a /stream of new events.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmdutil.SetLogLevels(cmdutil.GetUserSetOptionalVarFromString(cmd, cmdutil.LogLevelFlagName, cmdutil.LogLevelEnvKey), log.INFO)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			redisPrefix, _ := cmd.Flags().GetString(redisPrefixFlag)

			shutdownTimeout, err := cmdutil.GetUserSetOptionalVarFromDuration(cmd, shutdownFlagName, shutdownEnvKey)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg, runOptions{RedisPrefix: redisPrefix, ShutdownTimeout: shutdownTimeout})
		},
	}

	f := cmd.Flags()
	f.String(configFlagName, "", configFlagUsage)
	f.StringP(cmdutil.LogLevelFlagName, cmdutil.LogLevelFlagShorthand, "", cmdutil.LogLevelFlagUsage)
	f.String(rpcURLFlagName, "", "JSON-RPC endpoint. Alternatively, this can be set with the following environment variable: "+config.EnvRPCURL)
	f.String(kernelFlagName, "", "Kernel contract address. Alternatively, this can be set with the following environment variable: "+config.EnvKernelAddress)
	f.Uint64(chainIDFlagName, 0, "Chain id. Alternatively, this can be set with the following environment variable: "+config.EnvChainID)
	f.String(addrFlagName, "", "HTTP listen address. Alternatively, the port can be set with the following environment variable: "+config.EnvRelayPort)
	f.String(redisURLFlagName, "", "Redis URL; events are kept in memory when unset. Alternatively, this can be set with the following environment variable: "+config.EnvRedisURL)
	f.String(redisPrefixFlag, redisstore.DefaultPrefix, "Prefix of every Redis key")
	f.Uint64(startBlockFlag, 0, "First block to scan when no cursor is saved. Alternatively, this can be set with the following environment variable: "+config.EnvStartBlock)
	f.Uint64(backfillFlagName, 0, "Blocks behind the head to start from when neither a cursor nor a start block is set. Alternatively, this can be set with the following environment variable: "+config.EnvBackfillBlocks)
	f.Duration(pollIntervalFlag, 0, "Poll interval, e.g. 2500ms. Alternatively, this can be set in milliseconds with the following environment variable: "+config.EnvPollIntervalMS)
	f.Uint64(chunkSizeFlagName, 0, "Blocks per log query. Alternatively, this can be set with the following environment variable: "+chunkSizeEnvKey)
	f.Duration(shutdownFlagName, defaultShutdownTimeout, "Time allowed for open HTTP requests on shutdown. Alternatively, this can be set with the following environment variable: "+shutdownEnvKey)

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()

	o := &config.Config{}
	o.RPCURL, _ = f.GetString(rpcURLFlagName)
	o.KernelAddress, _ = f.GetString(kernelFlagName)
	o.ChainID, _ = f.GetUint64(chainIDFlagName)
	o.Relay.Addr, _ = f.GetString(addrFlagName)
	o.Relay.RedisURL, _ = f.GetString(redisURLFlagName)
	o.Relay.BackfillBlocks, _ = f.GetUint64(backfillFlagName)
	o.Relay.PollInterval, _ = f.GetDuration(pollIntervalFlag)
	if f.Changed(startBlockFlag) {
		n, _ := f.GetUint64(startBlockFlag)
		o.Relay.StartBlock = &n
	}

	chunkSize, err := cmdutil.GetUserSetOptionalVarFromUint64(cmd, chunkSizeFlagName, chunkSizeEnvKey)
	if err != nil {
		return nil, err
	}
	o.Relay.ChunkSize = chunkSize

	path := cmdutil.GetUserSetOptionalVarFromString(cmd, configFlagName, configEnvKey)

	cfg, err := config.Resolve(path, nil, o)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config, prefix string) (relay.Store, func() error, error) {
	if cfg.Relay.RedisURL == "" {
		logger.Warn("No Redis URL configured; events are kept in memory and lost on restart")
		return memstore.New(), func() error { return nil }, nil
	}

	s, err := redisstore.Open(ctx, cfg.Relay.RedisURL, prefix)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

type service struct {
	poller    *relay.Poller
	hub       *relay.Hub
	endpoints []api.Endpoint
}

func newService(cfg *config.Config, src ledger.EventSource, store relay.Store, reg *prometheus.Registry) *service {
	m := metrics.New(reg)
	hub := relay.NewHub(0, m)

	poller := relay.NewPoller(src, store, relay.Config{
		ChainID:        cfg.ChainID,
		Kernel:         cfg.Kernel(),
		StartBlock:     cfg.Relay.StartBlock,
		BackfillBlocks: cfg.Relay.BackfillBlocks,
		ChunkSize:      cfg.Relay.ChunkSize,
		PollInterval:   cfg.Relay.PollInterval,
	}, relay.WithMetrics(m), relay.WithBroadcast(hub.Broadcast))

	return &service{
		poller: poller,
		hub:    hub,
		endpoints: api.Endpoints(api.Deps{
			Store:    store,
			Hub:      hub,
			Head:     src,
			ChainID:  cfg.ChainID,
			Kernel:   cfg.Kernel(),
			Gatherer: reg,
		}),
	}
}

type runOptions struct {
	RedisPrefix     string
	ShutdownTimeout time.Duration
}

func run(ctx context.Context, cfg *config.Config, opts runOptions) error {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	logger.Info("Starting lumen-relay", logfields.WithConfig(cfg.Redacted()))

	src, err := openSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to ledger: %w", err)
	}
	defer src.Close()

	store, closeStore, err := openStore(ctx, cfg, opts.RedisPrefix)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close store", log.WithError(err))
		}
	}()

	svc := newService(cfg, src, store, prometheus.NewRegistry())

	srv := api.NewServer(cfg.Relay.Addr, readHeaderTimeout, svc.endpoints...)
	if err := srv.Start(); err != nil {
		return err
	}

	runErr := svc.poller.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("Failed to stop HTTP server", log.WithError(err))
	}

	return runErr
}

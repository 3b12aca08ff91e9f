// Package config resolves the process-level settings shared by the lumen
// client, CLI and relay. A Config is built once at the process boundary and
// passed down explicitly; nothing below this package reads the environment.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"lumen.dev/sdk/keys"
)

// Defaults for the public Base deployment.
const (
	DefaultRPCURL         = "https://mainnet.base.org"
	DefaultKernelAddress  = "0x52078D914CbccD78EE856b37b438818afaB3899c"
	DefaultChainID        = uint64(8453)
	DefaultConfirmations  = uint64(1)
	DefaultRelayAddr      = ":8787"
	DefaultBackfillBlocks = uint64(5000)
	DefaultPollInterval   = 2 * time.Second
	DefaultChunkSize      = uint64(2000)
)

// Environment variable names.
const (
	EnvPrivateKey     = "PRIVATE_KEY"
	EnvRPCURL         = "BASE_RPC_URL"
	EnvKernelAddress  = "KERNEL_ADDRESS"
	EnvChainID        = "CHAIN_ID"
	EnvConfirmations  = "CONFIRMATIONS"
	EnvCASConfig      = "LUMEN_CAS_CONFIG"
	EnvRelayPort      = "PORT"
	EnvRedisURL       = "REDIS_URL"
	EnvStartBlock     = "START_BLOCK"
	EnvBackfillBlocks = "BACKFILL_BLOCKS"
	EnvPollIntervalMS = "POLL_INTERVAL_MS"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// RelayConfig holds the relay monitor settings.
type RelayConfig struct {
	Addr           string        `yaml:"addr,omitempty"`
	RedisURL       string        `yaml:"redis_url,omitempty"` // empty = in-memory store
	StartBlock     *uint64       `yaml:"start_block,omitempty"`
	BackfillBlocks uint64        `yaml:"backfill_blocks,omitempty"`
	PollInterval   time.Duration `yaml:"poll_interval,omitempty"`
	ChunkSize      uint64        `yaml:"chunk_size,omitempty"`
}

// Config is the resolved lumen configuration.
type Config struct {
	PrivateKey    string      `yaml:"private_key,omitempty"` // hex secp256k1 key; empty = read-only
	RPCURL        string      `yaml:"rpc_url,omitempty"`
	KernelAddress string      `yaml:"kernel_address,omitempty"`
	ChainID       uint64      `yaml:"chain_id,omitempty"`
	Confirmations uint64      `yaml:"confirmations,omitempty"`
	CASConfig     string      `yaml:"cas_config,omitempty"` // path to a storage backend config
	Relay         RelayConfig `yaml:"relay,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		RPCURL:        DefaultRPCURL,
		KernelAddress: DefaultKernelAddress,
		ChainID:       DefaultChainID,
		Confirmations: DefaultConfirmations,
		Relay: RelayConfig{
			Addr:           DefaultRelayAddr,
			BackfillBlocks: DefaultBackfillBlocks,
			PollInterval:   DefaultPollInterval,
			ChunkSize:      DefaultChunkSize,
		},
	}
}

// LoadFile parses a YAML config file. Fields absent from the file are zero.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads the recognised environment variables through lookup. Unset
// or blank variables leave the corresponding field zero.
func FromEnv(lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}

	cfg := &Config{
		PrivateKey:    get(EnvPrivateKey),
		RPCURL:        get(EnvRPCURL),
		KernelAddress: get(EnvKernelAddress),
		CASConfig:     get(EnvCASConfig),
		Relay: RelayConfig{
			RedisURL: get(EnvRedisURL),
		},
	}

	var err error
	if cfg.ChainID, err = parseUint(EnvChainID, get(EnvChainID)); err != nil {
		return nil, err
	}
	if cfg.Confirmations, err = parseUint(EnvConfirmations, get(EnvConfirmations)); err != nil {
		return nil, err
	}
	if cfg.Relay.BackfillBlocks, err = parseUint(EnvBackfillBlocks, get(EnvBackfillBlocks)); err != nil {
		return nil, err
	}

	if v := get(EnvStartBlock); v != "" {
		n, err := parseUint(EnvStartBlock, v)
		if err != nil {
			return nil, err
		}
		cfg.Relay.StartBlock = &n
	}

	if v := get(EnvRelayPort); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a port", ErrInvalidConfig, EnvRelayPort, v)
		}
		cfg.Relay.Addr = ":" + strconv.FormatUint(port, 10)
	}

	ms, err := parseUint(EnvPollIntervalMS, get(EnvPollIntervalMS))
	if err != nil {
		return nil, err
	}
	cfg.Relay.PollInterval = time.Duration(ms) * time.Millisecond

	return cfg, nil
}

func parseUint(key, v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an unsigned integer", ErrInvalidConfig, key, v)
	}
	return n, nil
}

// Merge overlays the non-zero fields of other onto c and returns c.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	if other.PrivateKey != "" {
		c.PrivateKey = other.PrivateKey
	}
	if other.RPCURL != "" {
		c.RPCURL = other.RPCURL
	}
	if other.KernelAddress != "" {
		c.KernelAddress = other.KernelAddress
	}
	if other.ChainID != 0 {
		c.ChainID = other.ChainID
	}
	if other.Confirmations != 0 {
		c.Confirmations = other.Confirmations
	}
	if other.CASConfig != "" {
		c.CASConfig = other.CASConfig
	}

	r := other.Relay
	if r.Addr != "" {
		c.Relay.Addr = r.Addr
	}
	if r.RedisURL != "" {
		c.Relay.RedisURL = r.RedisURL
	}
	if r.StartBlock != nil {
		n := *r.StartBlock
		c.Relay.StartBlock = &n
	}
	if r.BackfillBlocks != 0 {
		c.Relay.BackfillBlocks = r.BackfillBlocks
	}
	if r.PollInterval != 0 {
		c.Relay.PollInterval = r.PollInterval
	}
	if r.ChunkSize != 0 {
		c.Relay.ChunkSize = r.ChunkSize
	}

	return c
}

// Resolve layers defaults, the optional YAML file at path, the environment
// and overrides, in increasing precedence, then validates the result.
func Resolve(path string, lookup LookupFunc, overrides *Config) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}

	envCfg, err := FromEnv(lookup)
	if err != nil {
		return nil, err
	}
	cfg.Merge(envCfg).Merge(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks address and key encodings and the relay settings.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("%w: rpc_url is required", ErrInvalidConfig)
	}
	if _, err := keys.ParseAddress(c.KernelAddress); err != nil {
		return fmt.Errorf("%w: kernel_address: %w", ErrInvalidConfig, err)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("%w: chain_id must be positive", ErrInvalidConfig)
	}
	if c.PrivateKey != "" {
		if _, err := keys.ParsePrivateKeyHex(c.PrivateKey); err != nil {
			return fmt.Errorf("%w: private_key: %w", ErrInvalidConfig, err)
		}
	}
	if c.Relay.ChunkSize == 0 {
		return fmt.Errorf("%w: relay.chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Relay.PollInterval <= 0 {
		return fmt.Errorf("%w: relay.poll_interval must be positive", ErrInvalidConfig)
	}

	return nil
}

// HasCredential reports whether a signing key is configured.
func (c *Config) HasCredential() bool {
	return c.PrivateKey != ""
}

// Key parses the configured signing key. It returns keys.ErrInvalidKey
// wrapped when no key is configured.
func (c *Config) Key() (*ecdsa.PrivateKey, error) {
	if c.PrivateKey == "" {
		return nil, fmt.Errorf("%w: no private key configured", keys.ErrInvalidKey)
	}
	return keys.ParsePrivateKeyHex(c.PrivateKey)
}

// Kernel returns the kernel contract address. Call after Validate.
func (c *Config) Kernel() common.Address {
	return common.HexToAddress(c.KernelAddress)
}

// String renders the config for logs with the credential redacted.
func (c Config) String() string {
	key := "<none>"
	if c.PrivateKey != "" {
		key = "<redacted>"
	}

	return fmt.Sprintf("rpc=%s kernel=%s chainId=%d confirmations=%d cas=%q key=%s",
		c.RPCURL, c.KernelAddress, c.ChainID, c.Confirmations, c.CASConfig, key)
}

// Redacted returns a copy safe to marshal into logs.
func (c Config) Redacted() Config {
	if c.PrivateKey != "" {
		c.PrivateKey = "<redacted>"
	}
	return c
}

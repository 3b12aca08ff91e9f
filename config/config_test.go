package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/keys"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func envOf(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestResolve_Defaults(t *testing.T) {
	cfg, err := Resolve("", envOf(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, DefaultKernelAddress, cfg.KernelAddress)
	assert.Equal(t, uint64(8453), cfg.ChainID)
	assert.Equal(t, uint64(1), cfg.Confirmations)
	assert.False(t, cfg.HasCredential())
	assert.Equal(t, ":8787", cfg.Relay.Addr)
	assert.Equal(t, uint64(5000), cfg.Relay.BackfillBlocks)
	assert.Equal(t, 2*time.Second, cfg.Relay.PollInterval)
	assert.Nil(t, cfg.Relay.StartBlock)
}

func TestResolve_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.yml")
	fileCfg := `rpc_url: "http://file:8545"
chain_id: 84532
confirmations: 3
relay:
  poll_interval: 5s
  chunk_size: 500
`
	require.NoError(t, os.WriteFile(path, []byte(fileCfg), 0o644))

	env := envOf(map[string]string{
		EnvRPCURL:         "http://env:8545",
		EnvPrivateKey:     testKeyHex,
		EnvStartBlock:     "100",
		EnvRelayPort:      "9000",
		EnvPollIntervalMS: "",
	})

	cfg, err := Resolve(path, env, &Config{Confirmations: 5})
	require.NoError(t, err)

	assert.Equal(t, "http://env:8545", cfg.RPCURL, "env beats file")
	assert.Equal(t, uint64(84532), cfg.ChainID, "file beats default")
	assert.Equal(t, uint64(5), cfg.Confirmations, "override beats file")
	assert.Equal(t, 5*time.Second, cfg.Relay.PollInterval)
	assert.Equal(t, uint64(500), cfg.Relay.ChunkSize)
	assert.Equal(t, ":9000", cfg.Relay.Addr)
	require.NotNil(t, cfg.Relay.StartBlock)
	assert.Equal(t, uint64(100), *cfg.Relay.StartBlock)
	assert.True(t, cfg.HasCredential())

	key, err := cfg.Key()
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", keys.Address(key).Hex())
}

func TestLoadFile_FileNotFound(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/lumen.yml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.yml")
	require.NoError(t, os.WriteFile(path, []byte("rpc_url: [unterminated\n"), 0o644))

	cfg, err := LoadFile(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	for _, key := range []string{EnvChainID, EnvConfirmations, EnvBackfillBlocks, EnvStartBlock, EnvPollIntervalMS, EnvRelayPort} {
		_, err := FromEnv(envOf(map[string]string{key: "-1"}))
		require.ErrorIs(t, err, ErrInvalidConfig, key)
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"bad kernel", func(c *Config) { c.KernelAddress = "0x1234" }, "kernel_address"},
		{"bad checksum", func(c *Config) { c.KernelAddress = "0x52078d914CbccD78EE856b37b438818afaB3899c" }, "kernel_address"},
		{"zero chain", func(c *Config) { c.ChainID = 0 }, "chain_id"},
		{"empty rpc", func(c *Config) { c.RPCURL = "" }, "rpc_url"},
		{"bad key", func(c *Config) { c.PrivateKey = "0xdeadbeef" }, "private_key"},
		{"zero chunk", func(c *Config) { c.Relay.ChunkSize = 0 }, "chunk_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_DoesNotLeakKey(t *testing.T) {
	cfg := Default()
	cfg.PrivateKey = testKeyHex[:60] + "zzzz"

	err := cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), cfg.PrivateKey)
}

func TestString_RedactsKey(t *testing.T) {
	cfg := Default()
	cfg.PrivateKey = testKeyHex

	assert.NotContains(t, cfg.String(), testKeyHex)
	assert.Contains(t, cfg.String(), "<redacted>")
	assert.Equal(t, "<redacted>", cfg.Redacted().PrivateKey)
	assert.Equal(t, testKeyHex, cfg.PrivateKey)
}

func TestKey_NoCredential(t *testing.T) {
	_, err := Default().Key()
	require.ErrorIs(t, err, keys.ErrInvalidKey)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammstate/internal/model"
)

const testConfig = `
chains:
  "1":
    rpc: http://localhost:8545
    multicall: "0xcA11bde05977b3631167028862bE2a173976CA11"
    anchor_tokens:
      - "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    factory_fees:
      "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f": 3000
    aero_factories:
      - "0x420DD381b31aEf6683db6B902084cB0FFECe40Da"
    ramses_quoters:
      "0xAAA32926fcE6bE95ea2c51cB4Fcb60836D320C42": "0xAA2ef8a3b34B414F8F7B47183971f18e4F367dC7"
    default_fee: 2500
    factory_default_fees:
      "0x1111111111111111111111111111111111111111": 1000
    pools:
      - "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"
    rate_limit: 20
    rate_burst: 5
  "8453":
    rpc: http://localhost:9545
batch-size: 500
state-backend: SQLite
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log-level: debug\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.ChainID)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, BackendFile, cfg.StateBackend)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 65536, cfg.DedupeSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.Chains)
}

func TestLoadChains(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(500), cfg.BatchSize)
	assert.Equal(t, BackendSQLite, cfg.StateBackend)
	require.Len(t, cfg.Chains, 2)
	assert.Equal(t, "http://localhost:9545", cfg.Chains[8453].RPC)

	chain, err := cfg.Chain()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), chain.ID)
	assert.Equal(t, "http://localhost:8545", chain.RPC)
	assert.Equal(t, common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11"), chain.Multicall)
	assert.Equal(t, []common.Address{common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")}, chain.AnchorTokens)
	assert.Equal(t, uint64(3000), chain.FactoryFees[common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")])
	assert.Len(t, chain.AeroFactories, 1)
	assert.Equal(t,
		common.HexToAddress("0xAA2ef8a3b34B414F8F7B47183971f18e4F367dC7"),
		chain.RamsesQuoters[common.HexToAddress("0xAAA32926fcE6bE95ea2c51cB4Fcb60836D320C42")],
	)
	assert.Equal(t, uint64(2500), chain.DefaultFee)
	assert.Equal(t, uint64(1000), chain.FactoryDefaultFees[common.HexToAddress("0x1111111111111111111111111111111111111111")])
	assert.Equal(t, []common.Address{common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")}, chain.Pools)
	assert.Equal(t, 20.0, chain.RateLimit)
	assert.Equal(t, 5, chain.RateBurst)
}

func TestLoadEnvAndFlagsOverride(t *testing.T) {
	t.Setenv("AMMSTATE_CHAIN_ID", "8453")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSlice("pool", nil, "")
	flags.String("factory-fees", "", "")
	flags.String("rpc", "", "")
	require.NoError(t, flags.Parse([]string{
		"--pool", "0x1111111111111111111111111111111111111111,0x2222222222222222222222222222222222222222",
		"--factory-fees", "0x3333333333333333333333333333333333333333=500",
		"--rpc", "http://override:8545",
	}))

	cfg, err := Load(writeConfig(t, testConfig), flags)
	require.NoError(t, err)
	assert.Equal(t, uint64(8453), cfg.ChainID)

	chain, err := cfg.Chain()
	require.NoError(t, err)
	assert.Equal(t, "http://override:8545", chain.RPC)
	assert.Len(t, chain.Pools, 2)
	assert.Equal(t, uint64(500), chain.FactoryFees[common.HexToAddress("0x3333333333333333333333333333333333333333")])
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, "state-backend: redis\n"), nil)
	require.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestChainErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown chain", cfg: Config{ChainID: 10}},
		{name: "no rpc", cfg: Config{ChainID: 1, Chains: map[uint64]ChainConfig{1: {}}}},
		{name: "bad pool", cfg: Config{ChainID: 1, RPCURL: "http://x", Pools: []string{"0x12"}}},
		{name: "bad fee", cfg: Config{ChainID: 1, RPCURL: "http://x", FactoryFees: map[string]string{
			"0x1111111111111111111111111111111111111111": "abc",
		}}},
		{name: "bad quoter", cfg: Config{ChainID: 1, Chains: map[uint64]ChainConfig{1: {
			RPC:           "http://x",
			RamsesQuoters: map[string]string{"0x1111111111111111111111111111111111111111": "nope"},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Chain()
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap(" a = 1 ,broken,=2, b=3,c=")
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, got)
	assert.Empty(t, parseStringMap("  "))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AMMSTATE_TEST_DOTENV=yes\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("AMMSTATE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "yes", os.Getenv("AMMSTATE_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

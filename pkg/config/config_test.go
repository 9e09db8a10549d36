package config

import (
	"testing"
	"time"

	"minter-core/internal/rpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, rpc.Sepolia, cfg.Eth.Network)
	assert.Equal(t, uint64(11155111), cfg.Eth.ChainID)
	assert.NotEmpty(t, cfg.Eth.Providers)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RetryInterval)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.StuckMinAge)
	assert.Equal(t, uint64(1), cfg.Pipeline.SendWindow)
	assert.Equal(t, "unmined", cfg.Pipeline.StuckRule)
	assert.Equal(t, int64(-1), cfg.Eth.InitialNonce)
	assert.Equal(t, LedgerMemory, cfg.LedgerBackend())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_CREATE_BATCH_SIZE", "3")
	t.Setenv("STORE_BACKEND", "leveldb")
	t.Setenv("ETH_NETWORK", "mainnet")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.CreateBatchSize)
	assert.Equal(t, StoreLevelDB, cfg.Store.Backend)
	assert.Equal(t, rpc.Mainnet, cfg.Eth.Network)
	assert.Equal(t, LedgerPostgres, cfg.LedgerBackend())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store: StoreConfig{Backend: StoreMemory, Digest: "blake3"},
			Eth: EthConfig{
				ChainID:   1,
				Providers: []rpc.ProviderConfig{{Name: "a", URL: "http://localhost:8545"}},
			},
			Pipeline: PipelineConfig{
				CreateBatchSize: 1, SignBatchSize: 1, SendBatchSize: 1,
				ResubmitBatchSize: 1, FinalizeBatchSize: 1, ReimburseBatch: 1,
				Guard: "local",
			},
		}
	}
	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no providers", func(c *Config) { c.Eth.Providers = nil }, "at least one provider"},
		{"empty url", func(c *Config) { c.Eth.Providers[0].URL = "" }, "url is required"},
		{"zero chain id", func(c *Config) { c.Eth.ChainID = 0 }, "chain_id"},
		{"zero batch", func(c *Config) { c.Pipeline.SendBatchSize = 0 }, "send_batch_size"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"unknown digest", func(c *Config) { c.Store.Digest = "md5" }, "store.digest"},
		{"unknown guard", func(c *Config) { c.Pipeline.Guard = "zk" }, "pipeline.guard"},
		{"unknown stuck rule", func(c *Config) { c.Pipeline.StuckRule = "sometimes" }, "pipeline.stuck_rule"},
		{"unknown ledger", func(c *Config) { c.Ledger.Backend = "csv" }, "ledger.backend"},
		{"memory ledger with durable log", func(c *Config) {
			c.Store.Backend = StoreLevelDB
			c.Ledger.Backend = LedgerMemory
		}, "memory ledger cannot back"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.errMsg)
		})
	}
}

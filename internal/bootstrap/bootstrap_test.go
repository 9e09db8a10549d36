package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"minter-core/internal/ledger"
	"minter-core/internal/service"
	"minter-core/internal/state"
	"minter-core/pkg/config"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(backend string) config.Config {
	var cfg config.Config
	cfg.Store.Backend = backend
	cfg.Store.Digest = "keccak256"
	cfg.Pipeline.Guard = "local"
	return cfg
}

func TestMemoryBackends(t *testing.T) {
	res := New(testConfig(config.StoreMemory))
	defer res.Close()
	ctx := context.Background()

	events, err := res.EventStore(ctx)
	require.NoError(t, err)
	assert.Zero(t, events.Seq())

	l, err := res.Ledger(ctx)
	require.NoError(t, err)
	assert.IsType(t, &ledger.MemoryLedger{}, l)

	g, err := res.Guard(ctx)
	require.NoError(t, err)
	assert.IsType(t, &service.LocalGuard{}, g)
}

func TestLevelDBSurvivesReopen(t *testing.T) {
	cfg := testConfig(config.StoreLevelDB)
	cfg.LevelDB.Path = filepath.Join(t.TempDir(), "events")
	ctx := context.Background()

	res := New(cfg)
	events, err := res.EventStore(ctx)
	require.NoError(t, err)
	_, err = events.AppendAndApply(ctx, state.AcceptedWithdrawalRequest{Request: state.WithdrawalRequest{
		ID:          1,
		Destination: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Amount:      types.MustParseWei("1000000000000000000"),
		Owner:       "alice",
	}})
	require.NoError(t, err)
	res.Close()

	res = New(cfg)
	defer res.Close()
	events, err = res.EventStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), events.Seq())
	assert.Equal(t, state.StagePending, events.Snapshot().Status(1).Stage)
}

func TestDurableBackendsNeverUseMemoryLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, backend := range []string{config.StoreLevelDB, config.StoreMongo, config.StorePostgres} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(backend)
			cfg.DB = config.DBConfig{Host: "127.0.0.1", Port: "1", User: "minter", Password: "minter", Name: "minter"}

			res := New(cfg)
			defer res.Close()
			l, err := res.Ledger(ctx)
			assert.Error(t, err)
			assert.NotContains(t, fmt.Sprintf("%T", l), "MemoryLedger")

			cfg.Ledger.Backend = config.LedgerMemory
			res = New(cfg)
			defer res.Close()
			l, err = res.Ledger(ctx)
			assert.ErrorContains(t, err, "memory ledger cannot back")
			assert.Nil(t, l)
		})
	}
}

func TestUnknownBackend(t *testing.T) {
	res := New(testConfig("sqlite"))
	_, err := res.EventStore(context.Background())
	assert.ErrorContains(t, err, "unknown store backend")
}

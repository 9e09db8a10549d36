package service

import (
	"testing"

	"minter-core/internal/state"
	"minter-core/pkg/wallet/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTransactionPrice(t *testing.T) {
	price, err := EstimateTransactionPrice(testHistory())
	require.NoError(t, err)
	assert.Equal(t, testPrice(), price)

	fee, ok := price.MaxTransactionFee()
	require.True(t, ok)
	assert.Equal(t, "462000000000000", fee.String())
}

func TestEstimateTransactionPriceFloorsPriorityFee(t *testing.T) {
	price, err := EstimateTransactionPrice(types.FeeHistory{
		BaseFeePerGas: []types.Wei{gwei(1)},
		Reward:        [][]types.Wei{{types.NewWei(1)}, {}, {types.NewWei(3)}},
	})
	require.NoError(t, err)
	assert.Equal(t, MinPriorityFeePerGas, price.MaxPriorityFeePerGas)
	assert.Equal(t, types.MustParseWei("3500000000"), price.MaxFeePerGas)
	assert.Equal(t, types.DefaultGasLimit, price.GasLimit)

	_, err = EstimateTransactionPrice(types.FeeHistory{})
	require.ErrorIs(t, err, ErrEmptyFeeHistory)
}

func TestBumpPrice(t *testing.T) {
	previous := types.TransactionPrice{GasLimit: 21_000, MaxFeePerGas: gwei(100), MaxPriorityFeePerGas: gwei(10)}

	t.Run("raises the previous price", func(t *testing.T) {
		current := types.TransactionPrice{GasLimit: 21_000, MaxFeePerGas: gwei(50), MaxPriorityFeePerGas: gwei(5)}
		got, err := BumpPrice(previous, current, 10)
		require.NoError(t, err)
		assert.Equal(t, gwei(110), got.MaxFeePerGas)
		assert.Equal(t, gwei(11), got.MaxPriorityFeePerGas)
	})

	t.Run("follows a higher market", func(t *testing.T) {
		current := types.TransactionPrice{GasLimit: 21_000, MaxFeePerGas: gwei(300), MaxPriorityFeePerGas: gwei(20)}
		got, err := BumpPrice(previous, current, 10)
		require.NoError(t, err)
		assert.Equal(t, gwei(300), got.MaxFeePerGas)
		assert.Equal(t, gwei(20), got.MaxPriorityFeePerGas)
	})

	t.Run("priority never exceeds max fee", func(t *testing.T) {
		current := types.TransactionPrice{GasLimit: 21_000, MaxFeePerGas: gwei(1), MaxPriorityFeePerGas: gwei(500)}
		got, err := BumpPrice(previous, current, 10)
		require.NoError(t, err)
		assert.Equal(t, got.MaxFeePerGas, got.MaxPriorityFeePerGas)
	})
}

func TestCreateTransaction(t *testing.T) {
	req := state.WithdrawalRequest{ID: 7, Amount: types.NewWei(100)}

	_, err := CreateTransaction(req, 3, types.TransactionPrice{GasLimit: 1, MaxFeePerGas: types.NewWei(150)}, testChainID)
	require.ErrorIs(t, err, ErrInsufficientAmount)

	tx, err := CreateTransaction(req, 3, types.TransactionPrice{GasLimit: 2, MaxFeePerGas: types.NewWei(30), MaxPriorityFeePerGas: types.NewWei(1)}, testChainID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tx.Nonce)
	assert.Equal(t, types.NewWei(40), tx.Amount)
	assert.Equal(t, uint64(2), tx.GasLimit)
	assert.Equal(t, uint64(testChainID), tx.ChainID)
}

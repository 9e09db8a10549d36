package service

import (
	"errors"
	"fmt"
	"sort"

	"minter-core/internal/rpc"
	"minter-core/pkg/wallet/types"
)

const (
	feeHistoryBlockCount = 5
	feeHistoryPercentile = 20
)

// MinPriorityFeePerGas is the floor of the tip, 1.5 gwei.
var MinPriorityFeePerGas = types.NewWei(1_500_000_000)

var ErrEmptyFeeHistory = errors.New("fee history has no base fee")

// FeeHistoryArgs is the query used to price every round.
func FeeHistoryArgs() rpc.FeeHistoryArgs {
	return rpc.FeeHistoryArgs{
		BlockCount:        feeHistoryBlockCount,
		HighestBlock:      types.BlockTagLatest,
		RewardPercentiles: []float64{feeHistoryPercentile},
	}
}

// EstimateTransactionPrice derives the round price from a fee history:
// max_fee = 2 * next base fee + priority, priority = max(median reward, floor).
func EstimateTransactionPrice(h types.FeeHistory) (types.TransactionPrice, error) {
	if len(h.BaseFeePerGas) == 0 {
		return types.TransactionPrice{}, ErrEmptyFeeHistory
	}
	base := h.BaseFeePerGas[len(h.BaseFeePerGas)-1]

	priority := types.MaxWei(medianReward(h.Reward), MinPriorityFeePerGas)
	doubled, ok := base.CheckedMulUint64(2)
	if !ok {
		return types.TransactionPrice{}, fmt.Errorf("base fee %s: %w", base, types.ErrWeiOverflow)
	}
	maxFee, ok := doubled.CheckedAdd(priority)
	if !ok {
		return types.TransactionPrice{}, fmt.Errorf("max fee: %w", types.ErrWeiOverflow)
	}
	return types.TransactionPrice{
		GasLimit:             types.DefaultGasLimit,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: priority,
	}, nil
}

func medianReward(rewards [][]types.Wei) types.Wei {
	values := make([]types.Wei, 0, len(rewards))
	for _, r := range rewards {
		if len(r) > 0 {
			values = append(values, r[0])
		}
	}
	if len(values) == 0 {
		return types.Wei{}
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Cmp(values[j]) < 0 })
	return values[len(values)/2]
}

// BumpPrice returns the price of a replacement transaction: each field is the
// larger of the current price and the previous one raised by bumpPercent.
func BumpPrice(previous, current types.TransactionPrice, bumpPercent uint64) (types.TransactionPrice, error) {
	bump := func(prev, cur types.Wei) (types.Wei, error) {
		raised, ok := prev.MulDivUint64(100+bumpPercent, 100)
		if !ok {
			return types.Wei{}, fmt.Errorf("bump %s: %w", prev, types.ErrWeiOverflow)
		}
		return types.MaxWei(raised, cur), nil
	}
	maxFee, err := bump(previous.MaxFeePerGas, current.MaxFeePerGas)
	if err != nil {
		return types.TransactionPrice{}, err
	}
	priority, err := bump(previous.MaxPriorityFeePerGas, current.MaxPriorityFeePerGas)
	if err != nil {
		return types.TransactionPrice{}, err
	}
	if priority.Cmp(maxFee) > 0 {
		priority = maxFee
	}
	return types.TransactionPrice{
		GasLimit:             max(previous.GasLimit, current.GasLimit),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: priority,
	}, nil
}

package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EthRpcClient exposes the RPC methods the minter needs, each reduced
// with the consensus policy that fits the fact being read.
type EthRpcClient struct {
	reader *ConsensusReader
}

func NewEthRpcClient(reader *ConsensusReader) *EthRpcClient {
	return &EthRpcClient{reader: reader}
}

// FeeHistoryArgs are the parameters of eth_feeHistory.
type FeeHistoryArgs struct {
	BlockCount        uint64
	HighestBlock      types.BlockTag
	RewardPercentiles []float64
}

type rpcFeeHistory struct {
	OldestBlock   hexutil.Uint64   `json:"oldestBlock"`
	BaseFeePerGas []*hexutil.Big   `json:"baseFeePerGas"`
	Reward        [][]*hexutil.Big `json:"reward"`
}

func (h rpcFeeHistory) toFeeHistory() (types.FeeHistory, error) {
	out := types.FeeHistory{OldestBlock: uint64(h.OldestBlock)}
	for _, b := range h.BaseFeePerGas {
		w, err := weiFromHexBig(b)
		if err != nil {
			return types.FeeHistory{}, fmt.Errorf("base fee: %w", err)
		}
		out.BaseFeePerGas = append(out.BaseFeePerGas, w)
	}
	for _, row := range h.Reward {
		rewards := make([]types.Wei, 0, len(row))
		for _, r := range row {
			w, err := weiFromHexBig(r)
			if err != nil {
				return types.FeeHistory{}, fmt.Errorf("reward: %w", err)
			}
			rewards = append(rewards, w)
		}
		out.Reward = append(out.Reward, rewards)
	}
	return out, nil
}

// FeeHistory takes the reply with the lowest oldest block, the view of the
// provider that lags the most.
func (c *EthRpcClient) FeeHistory(ctx context.Context, args FeeHistoryArgs) (types.FeeHistory, error) {
	raw := CallAll[rpcFeeHistory](ctx, c.reader, "eth_feeHistory",
		hexutil.Uint64(args.BlockCount), string(args.HighestBlock), args.RewardPercentiles)
	results := MapResults(raw, rpcFeeHistory.toFeeHistory)
	return ReduceWithMinByKey(results, func(h types.FeeHistory) uint64 { return h.OldestBlock })
}

// TransactionCount returns the raw per-provider counts.
func (c *EthRpcClient) TransactionCount(ctx context.Context, address common.Address, tag types.BlockTag) MultiCallResults[uint64] {
	raw := CallAll[hexutil.Uint64](ctx, c.reader, "eth_getTransactionCount", address, string(tag))
	return MapResults(raw, func(v hexutil.Uint64) (uint64, error) { return uint64(v), nil })
}

// LatestTransactionCount is a lower bound: the smallest count any provider reports.
func (c *EthRpcClient) LatestTransactionCount(ctx context.Context, address common.Address) (uint64, error) {
	return ReduceWithMinByKey(c.TransactionCount(ctx, address, types.BlockTagLatest),
		func(v uint64) uint64 { return v })
}

// FinalizedTransactionCount must be identical across every provider that answers.
func (c *EthRpcClient) FinalizedTransactionCount(ctx context.Context, address common.Address) (uint64, error) {
	return ReduceWithEquality(c.TransactionCount(ctx, address, types.BlockTagFinalized))
}

// SendRawTransaction broadcasts to every provider. Known error messages are
// classified; an "already known" reply counts as Ok. NonceTooLow next to Ok
// means the same transaction was already accepted by the other providers,
// so it collapses to Ok before the replies are compared.
func (c *EthRpcClient) SendRawTransaction(ctx context.Context, raw []byte) (types.SendRawTransactionResult, error) {
	replies := CallAll[common.Hash](ctx, c.reader, "eth_sendRawTransaction", hexutil.Bytes(raw))

	classified := MultiCallResults[types.SendRawTransactionResult]{
		Results: make([]ProviderResult[types.SendRawTransactionResult], len(replies.Results)),
	}
	for i, res := range replies.Results {
		out := ProviderResult[types.SendRawTransactionResult]{Provider: res.Provider}
		if res.Err != nil {
			if kind, ok := ClassifySendError(res.Err); ok {
				out.Value = kind
			} else {
				out.Err = res.Err
			}
		}
		classified.Results[i] = out
	}
	return ReduceWithEquality(collapseNonceTooLow(classified))
}

func collapseNonceTooLow(m MultiCallResults[types.SendRawTransactionResult]) MultiCallResults[types.SendRawTransactionResult] {
	anyOk := false
	for _, res := range m.Results {
		if res.Err == nil && res.Value == types.SendOk {
			anyOk = true
			break
		}
	}
	if !anyOk {
		return m
	}
	return MapResults(m, func(v types.SendRawTransactionResult) (types.SendRawTransactionResult, error) {
		if v == types.SendNonceTooLow {
			return types.SendOk, nil
		}
		return v, nil
	})
}

// ClassifySendError maps a JSON-RPC error of eth_sendRawTransaction to a result.
func ClassifySendError(err error) (types.SendRawTransactionResult, bool) {
	var rpcErr *JsonRpcError
	if !errors.As(err, &rpcErr) {
		return 0, false
	}
	msg := strings.ToLower(rpcErr.Message)
	switch {
	case strings.Contains(msg, "already known"), strings.Contains(msg, "known transaction"):
		return types.SendOk, true
	case strings.Contains(msg, "nonce too low"):
		return types.SendNonceTooLow, true
	case strings.Contains(msg, "nonce too high"):
		return types.SendNonceTooHigh, true
	case strings.Contains(msg, "insufficient funds"):
		return types.SendInsufficientFunds, true
	}
	return 0, false
}

type rpcReceipt struct {
	BlockHash         common.Hash    `json:"blockHash"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	Status            hexutil.Uint64 `json:"status"`
	TransactionHash   common.Hash    `json:"transactionHash"`
}

func toMaybeReceipt(r *rpcReceipt) (types.MaybeReceipt, error) {
	if r == nil {
		return types.MaybeReceipt{}, nil
	}
	price, err := weiFromHexBig(r.EffectiveGasPrice)
	if err != nil {
		return types.MaybeReceipt{}, fmt.Errorf("effective gas price: %w", err)
	}
	return types.MaybeReceipt{
		Found: true,
		Receipt: types.TransactionReceipt{
			BlockHash:         r.BlockHash,
			BlockNumber:       uint64(r.BlockNumber),
			EffectiveGasPrice: price,
			GasUsed:           uint64(r.GasUsed),
			Status:            types.TransactionStatus(r.Status),
			TransactionHash:   r.TransactionHash,
		},
	}, nil
}

// TransactionReceipt requires every answering provider to return the same receipt, or the same null.
func (c *EthRpcClient) TransactionReceipt(ctx context.Context, hash common.Hash) (types.MaybeReceipt, error) {
	raw := CallAll[*rpcReceipt](ctx, c.reader, "eth_getTransactionReceipt", hash)
	return ReduceWithEquality(MapResults(raw, toMaybeReceipt))
}

func weiFromHexBig(b *hexutil.Big) (types.Wei, error) {
	if b == nil {
		return types.Wei{}, nil
	}
	return types.WeiFromBig((*big.Int)(b))
}

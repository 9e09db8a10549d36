package service

import (
	"context"

	"minter-core/internal/rpc"
	"minter-core/internal/state"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
)

// ChainClient is the consensus view of the chain the pipeline acts on.
// rpc.EthRpcClient implements it.
type ChainClient interface {
	FeeHistory(ctx context.Context, args rpc.FeeHistoryArgs) (types.FeeHistory, error)
	LatestTransactionCount(ctx context.Context, address common.Address) (uint64, error)
	FinalizedTransactionCount(ctx context.Context, address common.Address) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (types.SendRawTransactionResult, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (types.MaybeReceipt, error)
}

// EventLog is the only way the services change withdrawal state.
// store.EventStore implements it.
type EventLog interface {
	AppendAndApply(ctx context.Context, payload state.Payload) (state.Event, error)
	Read(fn func(*state.EthTransactions))
}

var _ ChainClient = (*rpc.EthRpcClient)(nil)

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// BlockTag selects the block an RPC query is evaluated against.
type BlockTag string

const (
	BlockTagLatest    BlockTag = "latest"
	BlockTagFinalized BlockTag = "finalized"
	BlockTagPending   BlockTag = "pending"
)

type TransactionStatus uint64

const (
	TransactionStatusFailure TransactionStatus = 0
	TransactionStatusSuccess TransactionStatus = 1
)

func (s TransactionStatus) String() string {
	if s == TransactionStatusSuccess {
		return "success"
	}
	return "failure"
}

// TransactionReceipt holds the receipt fields the minter relies on.
// All fields are comparable so that receipts from different providers can be checked for equality.
type TransactionReceipt struct {
	BlockHash         common.Hash       `json:"block_hash"`
	BlockNumber       uint64            `json:"block_number"`
	EffectiveGasPrice Wei               `json:"effective_gas_price"`
	GasUsed           uint64            `json:"gas_used"`
	Status            TransactionStatus `json:"status"`
	TransactionHash   common.Hash       `json:"transaction_hash"`
}

// EffectiveTransactionFee is gas_used * effective_gas_price.
func (r TransactionReceipt) EffectiveTransactionFee() (Wei, bool) {
	return r.EffectiveGasPrice.CheckedMulUint64(r.GasUsed)
}

// MaybeReceipt is the result of eth_getTransactionReceipt, which is null
// for transactions that are unknown or not yet mined.
type MaybeReceipt struct {
	Found   bool
	Receipt TransactionReceipt
}

// FeeHistory is the reply of eth_feeHistory.
type FeeHistory struct {
	OldestBlock   uint64
	BaseFeePerGas []Wei
	Reward        [][]Wei
}

// SendRawTransactionResult classifies the outcome of eth_sendRawTransaction.
type SendRawTransactionResult int

const (
	SendOk SendRawTransactionResult = iota
	SendInsufficientFunds
	SendNonceTooLow
	SendNonceTooHigh
)

func (r SendRawTransactionResult) String() string {
	switch r {
	case SendOk:
		return "ok"
	case SendInsufficientFunds:
		return "insufficient_funds"
	case SendNonceTooLow:
		return "nonce_too_low"
	case SendNonceTooHigh:
		return "nonce_too_high"
	default:
		return "unknown"
	}
}

package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// DefaultGasLimit covers a plain ETH transfer to an externally owned account.
const DefaultGasLimit uint64 = 21_000

// TransactionPrice is derived once per round from the fee history and
// shared by every transaction created in that round.
type TransactionPrice struct {
	GasLimit             uint64 `json:"gas_limit"`
	MaxFeePerGas         Wei    `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas Wei    `json:"max_priority_fee_per_gas"`
}

// MaxTransactionFee is the most the sender can be charged: max_fee_per_gas * gas_limit.
func (p TransactionPrice) MaxTransactionFee() (Wei, bool) {
	return p.MaxFeePerGas.CheckedMulUint64(p.GasLimit)
}

// Transaction is an unsigned EIP-1559 transaction request.
type Transaction struct {
	ChainID              uint64         `json:"chain_id"`
	Nonce                uint64         `json:"nonce"`
	MaxPriorityFeePerGas Wei            `json:"max_priority_fee_per_gas"`
	MaxFeePerGas         Wei            `json:"max_fee_per_gas"`
	GasLimit             uint64         `json:"gas_limit"`
	Destination          common.Address `json:"destination"`
	Amount               Wei            `json:"amount"`
}

func (t Transaction) Price() TransactionPrice {
	return TransactionPrice{
		GasLimit:             t.GasLimit,
		MaxFeePerGas:         t.MaxFeePerGas,
		MaxPriorityFeePerGas: t.MaxPriorityFeePerGas,
	}
}

// ToEthereum builds the go-ethereum representation used for signing and encoding.
func (t Transaction) ToEthereum() *ethtypes.Transaction {
	to := t.Destination
	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(t.ChainID),
		Nonce:     t.Nonce,
		GasTipCap: t.MaxPriorityFeePerGas.Big(),
		GasFeeCap: t.MaxFeePerGas.Big(),
		Gas:       t.GasLimit,
		To:        &to,
		Value:     t.Amount.Big(),
	})
}

// SignedTransaction is a Transaction with its signature applied.
// Hash is the key used when querying receipts.
type SignedTransaction struct {
	Transaction Transaction   `json:"transaction"`
	RawTx       hexutil.Bytes `json:"raw_tx"`
	Hash        common.Hash   `json:"hash"`
}

// DecodeSignedTransaction parses raw EIP-2718 bytes back into a SignedTransaction.
func DecodeSignedTransaction(raw []byte) (SignedTransaction, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return SignedTransaction{}, fmt.Errorf("decode raw transaction: %w", err)
	}
	if tx.Type() != ethtypes.DynamicFeeTxType {
		return SignedTransaction{}, fmt.Errorf("unexpected transaction type %d", tx.Type())
	}
	if tx.To() == nil {
		return SignedTransaction{}, fmt.Errorf("contract creation is not a withdrawal")
	}
	tipCap, err := WeiFromBig(tx.GasTipCap())
	if err != nil {
		return SignedTransaction{}, err
	}
	feeCap, err := WeiFromBig(tx.GasFeeCap())
	if err != nil {
		return SignedTransaction{}, err
	}
	value, err := WeiFromBig(tx.Value())
	if err != nil {
		return SignedTransaction{}, err
	}
	return SignedTransaction{
		Transaction: Transaction{
			ChainID:              tx.ChainId().Uint64(),
			Nonce:                tx.Nonce(),
			MaxPriorityFeePerGas: tipCap,
			MaxFeePerGas:         feeCap,
			GasLimit:             tx.Gas(),
			Destination:          *tx.To(),
			Amount:               value,
		},
		RawTx: raw,
		Hash:  tx.Hash(),
	}, nil
}

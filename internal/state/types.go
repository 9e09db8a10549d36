package state

import (
	"time"

	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
)

// BurnIndex identifies a withdrawal. It is assigned when the user burns
// tokens and is unique and monotonic.
type BurnIndex uint64

// WithdrawalRequest is immutable until the pipeline consumes it.
type WithdrawalRequest struct {
	ID          BurnIndex      `json:"id"`
	Destination common.Address `json:"destination"`
	Amount      types.Wei      `json:"amount"`
	// Owner and Subaccount name the ledger account that burned the tokens
	// and receives any reimbursement.
	Owner      string    `json:"owner"`
	Subaccount string    `json:"subaccount,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReimbursementRequest is queued when a finalized transaction failed on chain.
type ReimbursementRequest struct {
	WithdrawalID     BurnIndex   `json:"withdrawal_id"`
	To               string      `json:"to"`
	ToSubaccount     string      `json:"to_subaccount,omitempty"`
	ReimbursedAmount types.Wei   `json:"reimbursed_amount"`
	TransactionHash  common.Hash `json:"transaction_hash"`
}

// ReimbursedWithdrawal is the terminal record of a paid reimbursement.
type ReimbursedWithdrawal struct {
	WithdrawalID      BurnIndex `json:"withdrawal_id"`
	ReimbursedInBlock uint64    `json:"reimbursed_in_block"`
	ReimbursedAmount  types.Wei `json:"reimbursed_amount"`
}

// FinalizedWithdrawal records which of the broadcast transactions was mined.
type FinalizedWithdrawal struct {
	Transaction types.SignedTransaction  `json:"transaction"`
	Receipt     types.TransactionReceipt `json:"receipt"`
}

// SentWithdrawal is a withdrawal whose transaction was broadcast.
// Transactions holds every version broadcast for the nonce, oldest first;
// the last one is live.
type SentWithdrawal struct {
	ID           BurnIndex
	Transactions []types.SignedTransaction
	SentAt       time.Time
}

func (s SentWithdrawal) Live() types.SignedTransaction {
	return s.Transactions[len(s.Transactions)-1]
}

func (s SentWithdrawal) Nonce() uint64 {
	return s.Live().Transaction.Nonce
}

// CreatedEntry pairs a withdrawal with its unsigned transaction.
type CreatedEntry struct {
	ID          BurnIndex
	Transaction types.Transaction
}

// SignedEntry pairs a withdrawal with its signed, not yet broadcast transaction.
type SignedEntry struct {
	ID          BurnIndex
	Transaction types.SignedTransaction
}

// Stage names the collection a withdrawal currently belongs to.
type Stage string

const (
	StageUnknown   Stage = "unknown"
	StagePending   Stage = "pending"
	StageCreated   Stage = "created"
	StageSigned    Stage = "signed"
	StageSent      Stage = "sent"
	StageFinalized Stage = "finalized"
)

type ReimbursementStatus string

const (
	ReimbursementNone       ReimbursementStatus = ""
	ReimbursementQueued     ReimbursementStatus = "queued"
	ReimbursementReimbursed ReimbursementStatus = "reimbursed"
)

// WithdrawalStatus is a read-only view of one withdrawal.
type WithdrawalStatus struct {
	ID                BurnIndex                 `json:"id"`
	Stage             Stage                     `json:"stage"`
	Request           *WithdrawalRequest        `json:"request,omitempty"`
	Nonce             *uint64                   `json:"nonce,omitempty"`
	TxHash            *common.Hash              `json:"tx_hash,omitempty"`
	Hashes            []common.Hash             `json:"hashes,omitempty"`
	Receipt           *types.TransactionReceipt `json:"receipt,omitempty"`
	Reimbursement     ReimbursementStatus       `json:"reimbursement,omitempty"`
	ReimbursedInBlock *uint64                   `json:"reimbursed_in_block,omitempty"`
}

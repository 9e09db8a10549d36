package state

import (
	"encoding/json"
	"fmt"
	"time"

	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
)

type EventType string

const (
	EventInitialized                  EventType = "initialized"
	EventAcceptedWithdrawalRequest    EventType = "accepted_withdrawal_request"
	EventRescheduledWithdrawalRequest EventType = "rescheduled_withdrawal_request"
	EventCreatedTransaction           EventType = "created_transaction"
	EventSignedTransaction            EventType = "signed_transaction"
	EventSentTransaction              EventType = "sent_transaction"
	EventReplacedTransaction          EventType = "replaced_transaction"
	EventFinalizedTransaction         EventType = "finalized_transaction"
	EventReimbursedEthWithdrawal      EventType = "reimbursed_eth_withdrawal"
)

// Payload is one variant of a state transition.
type Payload interface {
	Type() EventType
}

// Event is appended once per transition and never rewritten.
type Event struct {
	Timestamp time.Time
	Payload   Payload
}

func NewEvent(ts time.Time, p Payload) Event {
	return Event{Timestamp: ts.UTC(), Payload: p}
}

func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

// Initialized seeds the nonce of the minter address. It can only open a log.
type Initialized struct {
	NextTransactionNonce uint64 `json:"next_transaction_nonce"`
}

type AcceptedWithdrawalRequest struct {
	Request WithdrawalRequest `json:"request"`
}

// RescheduledWithdrawalRequest moves a pending request to the back of the queue.
type RescheduledWithdrawalRequest struct {
	WithdrawalID BurnIndex `json:"withdrawal_id"`
}

type CreatedTransaction struct {
	WithdrawalID BurnIndex         `json:"withdrawal_id"`
	Transaction  types.Transaction `json:"transaction"`
}

type SignedTransaction struct {
	WithdrawalID BurnIndex               `json:"withdrawal_id"`
	Transaction  types.SignedTransaction `json:"transaction"`
}

type SentTransaction struct {
	WithdrawalID BurnIndex   `json:"withdrawal_id"`
	TxHash       common.Hash `json:"tx_hash"`
}

// ReplacedTransaction records a resubmission: same withdrawal, same nonce, new payload.
type ReplacedTransaction struct {
	WithdrawalID BurnIndex               `json:"withdrawal_id"`
	Transaction  types.SignedTransaction `json:"transaction"`
}

type FinalizedTransaction struct {
	WithdrawalID BurnIndex                `json:"withdrawal_id"`
	TxHash       common.Hash              `json:"tx_hash"`
	Receipt      types.TransactionReceipt `json:"receipt"`
}

type ReimbursedEthWithdrawal struct {
	WithdrawalID      BurnIndex `json:"withdrawal_id"`
	ReimbursedInBlock uint64    `json:"reimbursed_in_block"`
	ReimbursedAmount  types.Wei `json:"reimbursed_amount"`
}

func (Initialized) Type() EventType                  { return EventInitialized }
func (AcceptedWithdrawalRequest) Type() EventType    { return EventAcceptedWithdrawalRequest }
func (RescheduledWithdrawalRequest) Type() EventType { return EventRescheduledWithdrawalRequest }
func (CreatedTransaction) Type() EventType           { return EventCreatedTransaction }
func (SignedTransaction) Type() EventType            { return EventSignedTransaction }
func (SentTransaction) Type() EventType              { return EventSentTransaction }
func (ReplacedTransaction) Type() EventType          { return EventReplacedTransaction }
func (FinalizedTransaction) Type() EventType         { return EventFinalizedTransaction }
func (ReimbursedEthWithdrawal) Type() EventType      { return EventReimbursedEthWithdrawal }

type eventJSON struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event without payload")
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{Timestamp: e.Timestamp, Type: e.Payload.Type(), Payload: payload})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := decodeByType(raw.Type, raw.Payload)
	if err != nil {
		return err
	}
	e.Timestamp = raw.Timestamp
	e.Payload = payload
	return nil
}

func decodeByType(t EventType, data json.RawMessage) (Payload, error) {
	switch t {
	case EventInitialized:
		return decode[Initialized](data)
	case EventAcceptedWithdrawalRequest:
		return decode[AcceptedWithdrawalRequest](data)
	case EventRescheduledWithdrawalRequest:
		return decode[RescheduledWithdrawalRequest](data)
	case EventCreatedTransaction:
		return decode[CreatedTransaction](data)
	case EventSignedTransaction:
		return decode[SignedTransaction](data)
	case EventSentTransaction:
		return decode[SentTransaction](data)
	case EventReplacedTransaction:
		return decode[ReplacedTransaction](data)
	case EventFinalizedTransaction:
		return decode[FinalizedTransaction](data)
	case EventReimbursedEthWithdrawal:
		return decode[ReimbursedEthWithdrawal](data)
	}
	return nil, fmt.Errorf("unknown event type %q", t)
}

func decode[P Payload](data json.RawMessage) (Payload, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Type(), err)
	}
	return p, nil
}

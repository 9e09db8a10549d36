package event

import (
	"encoding/json"
	"time"
)

// WithdrawalRequested asks the minter to pay out a burn.
// Topic: intake.topic (default minter.withdrawals)
type WithdrawalRequested struct {
	WithdrawalID uint64    `json:"withdrawal_id"`
	Destination  string    `json:"destination"` // 0x-prefixed address
	Amount       string    `json:"amount"`      // wei, decimal string
	Owner        string    `json:"owner"`
	Subaccount   string    `json:"subaccount,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MinterEvent mirrors one appended log record for downstream consumers.
// Topic: store.publish_topic
type MinterEvent struct {
	Seq       uint64          `json:"seq"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Event     json.RawMessage `json:"event"`
	Digest    string          `json:"digest"`
}

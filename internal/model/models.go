package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is one entry of the durable minter event log.
// Seq is contiguous from 1; Digest chains every record to its predecessor.
type EventRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement:false" json:"seq" bson:"seq"`
	Type      string    `gorm:"type:varchar(64);not null;index" json:"type" bson:"type"`
	Payload   []byte    `gorm:"type:bytea;not null" json:"payload" bson:"payload"`
	Digest    []byte    `gorm:"type:bytea;not null" json:"digest" bson:"digest"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (EventRecord) TableName() string {
	return "minter_events"
}

// LedgerAccount holds a token balance in wei.
// Version is bumped on every balance change for optimistic locking.
type LedgerAccount struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Owner      string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_owner_subaccount" json:"owner"`
	Subaccount string          `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_owner_subaccount" json:"subaccount"`
	Balance    decimal.Decimal `gorm:"type:decimal(78,0);not null;default:0" json:"balance"`
	Version    uint64          `gorm:"not null;default:0" json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (LedgerAccount) TableName() string {
	return "ledger_accounts"
}

// LedgerTransfer is the block of the ledger. Memo is unique so a transfer
// for the same reimbursement can only be recorded once.
type LedgerTransfer struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Memo       string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"memo"`
	Owner      string          `gorm:"type:varchar(255);not null;index" json:"owner"`
	Subaccount string          `gorm:"type:varchar(64);not null;default:''" json:"subaccount"`
	Amount     decimal.Decimal `gorm:"type:decimal(78,0);not null" json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (LedgerTransfer) TableName() string {
	return "ledger_transfers"
}

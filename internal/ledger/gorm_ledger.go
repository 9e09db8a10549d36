package ledger

import (
	"context"
	"errors"
	"fmt"

	"minter-core/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger keeps balances and transfers in PostgreSQL.
// The transfer id is the block index.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) Transfer(ctx context.Context, args TransferArgs) (uint64, error) {
	if err := args.validate(); err != nil {
		return 0, err
	}
	amount := decimal.NewFromBigInt(args.Amount.Big(), 0)

	var block uint64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.LedgerTransfer
		err := tx.Where("memo = ?", args.Memo).First(&existing).Error
		if err == nil {
			block = existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		account := model.LedgerAccount{Owner: args.To, Subaccount: args.Subaccount}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner = ? AND subaccount = ?", args.To, args.Subaccount).
			First(&account).Error; err != nil {
			return err
		}

		res := tx.Model(&model.LedgerAccount{}).
			Where("id = ? AND version = ?", account.ID, account.Version).
			Updates(map[string]interface{}{
				"balance": account.Balance.Add(amount),
				"version": account.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("account %d changed concurrently", account.ID)
		}

		transfer := model.LedgerTransfer{
			Memo:       args.Memo,
			Owner:      args.To,
			Subaccount: args.Subaccount,
			Amount:     amount,
		}
		if err := tx.Create(&transfer).Error; err != nil {
			return err
		}
		block = transfer.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ledger transfer %s: %w", args.Memo, err)
	}
	return block, nil
}

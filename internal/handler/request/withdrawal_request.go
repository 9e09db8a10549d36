package request

import (
	"errors"
	"time"

	"minter-core/internal/state"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CreateWithdrawalRequest submits a burn for payout. Amount is in wei.
type CreateWithdrawalRequest struct {
	WithdrawalID uint64          `json:"withdrawal_id" binding:"required"`
	Destination  string          `json:"destination" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Owner        string          `json:"owner" binding:"required"`
	Subaccount   string          `json:"subaccount"`
}

// ToWithdrawalRequest checks the fields gin binding cannot express.
func (r CreateWithdrawalRequest) ToWithdrawalRequest(now time.Time) (state.WithdrawalRequest, error) {
	if !common.IsHexAddress(r.Destination) {
		return state.WithdrawalRequest{}, errors.New("destination is not an address")
	}
	if !r.Amount.IsInteger() || !r.Amount.IsPositive() {
		return state.WithdrawalRequest{}, errors.New("amount must be a positive number of wei")
	}
	amount, err := types.WeiFromBig(r.Amount.BigInt())
	if err != nil {
		return state.WithdrawalRequest{}, err
	}
	return state.WithdrawalRequest{
		ID:          state.BurnIndex(r.WithdrawalID),
		Destination: common.HexToAddress(r.Destination),
		Amount:      amount,
		Owner:       r.Owner,
		Subaccount:  r.Subaccount,
		CreatedAt:   now.UTC(),
	}, nil
}

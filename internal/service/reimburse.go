package service

import (
	"context"
	"errors"
	"fmt"

	"minter-core/internal/ledger"
	"minter-core/internal/state"
	"minter-core/pkg/logger"
	"minter-core/pkg/monitor"

	"go.uber.org/zap"
)

var ErrReimbursementIncomplete = errors.New("some reimbursements failed")

// ReimbursementService pays back withdrawals whose transaction failed on chain.
type ReimbursementService struct {
	events EventLog
	ledger ledger.Ledger
	guard  Guard
	batch  int
	logger *zap.Logger
}

func NewReimbursementService(events EventLog, l ledger.Ledger, guard Guard, batch int) *ReimbursementService {
	return &ReimbursementService{
		events: events,
		ledger: l,
		guard:  guard,
		batch:  batch,
		logger: logger.Named("reimburse"),
	}
}

// ProcessReimbursements drains the reimbursement queue. A failed transfer
// leaves its request queued for the next run.
func (s *ReimbursementService) ProcessReimbursements(ctx context.Context) error {
	release, err := s.guard.Acquire(ctx, TaskReimbursement)
	if err != nil {
		s.logger.Debug("failed retrieving reimbursement guard", zap.Error(err))
		monitor.ObserveRound(string(TaskReimbursement), "skipped")
		return err
	}
	defer release()

	var requests []state.ReimbursementRequest
	s.events.Read(func(st *state.EthTransactions) { requests = st.ReimbursementRequests() })
	if len(requests) == 0 {
		return nil
	}
	if s.batch > 0 && len(requests) > s.batch {
		requests = requests[:s.batch]
	}

	failed := 0
	for _, req := range requests {
		log := s.logger.With(zap.Uint64("withdrawal_id", uint64(req.WithdrawalID)))
		block, err := s.ledger.Transfer(ctx, ledger.TransferArgs{
			To:         req.To,
			Subaccount: req.ToSubaccount,
			Amount:     req.ReimbursedAmount,
			Memo:       ledger.ReimbursementMemo(uint64(req.WithdrawalID)),
		})
		if err != nil {
			failed++
			monitor.ObserveReimbursementFailure()
			log.Info("failed to reimburse", zap.Error(err))
			continue
		}
		_, err = s.events.AppendAndApply(ctx, state.ReimbursedEthWithdrawal{
			WithdrawalID:      req.WithdrawalID,
			ReimbursedInBlock: block,
			ReimbursedAmount:  req.ReimbursedAmount,
		})
		if err != nil {
			failed++
			log.Error("failed to record reimbursement", zap.Uint64("block", block), zap.Error(err))
			continue
		}
		log.Info("reimbursed withdrawal", zap.Uint64("block", block), zap.Stringer("amount", req.ReimbursedAmount))
	}

	outcome := "ok"
	if failed > 0 {
		outcome = "aborted"
	}
	monitor.ObserveRound(string(TaskReimbursement), outcome)
	if failed > 0 {
		s.logger.Info("failed to reimburse some users, retrying later", zap.Int("failed", failed))
		return fmt.Errorf("%w: %d of %d", ErrReimbursementIncomplete, failed, len(requests))
	}
	return nil
}

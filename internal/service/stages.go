package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minter-core/internal/state"
	"minter-core/pkg/wallet/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInsufficientAmount means the withdrawal cannot cover the maximum fee.
var ErrInsufficientAmount = errors.New("withdrawal amount does not cover the transaction fee")

// CreateTransaction builds the transaction paying req at nonce. The value
// sent is the amount minus the maximum fee, so the user pays the fee.
func CreateTransaction(req state.WithdrawalRequest, nonce uint64, price types.TransactionPrice, chainID uint64) (types.Transaction, error) {
	maxFee, ok := price.MaxTransactionFee()
	if !ok {
		return types.Transaction{}, fmt.Errorf("max transaction fee: %w", types.ErrWeiOverflow)
	}
	value, ok := req.Amount.CheckedSub(maxFee)
	if !ok {
		return types.Transaction{}, fmt.Errorf("%w: withdrawal %d amount %s, max fee %s",
			ErrInsufficientAmount, req.ID, req.Amount, maxFee)
	}
	return types.Transaction{
		ChainID:              chainID,
		Nonce:                nonce,
		MaxPriorityFeePerGas: price.MaxPriorityFeePerGas,
		MaxFeePerGas:         price.MaxFeePerGas,
		GasLimit:             price.GasLimit,
		Destination:          req.Destination,
		Amount:               value,
	}, nil
}

// StuckRule selects which nonces, relative to the latest count, are
// candidates for replacement.
type StuckRule string

const (
	// StuckUnmined replaces transactions the latest count does not cover yet.
	StuckUnmined StuckRule = "unmined"
	// StuckBelowLatest replaces transactions whose nonce the latest count
	// already passed. A copy that was mined answers NonceTooLow.
	StuckBelowLatest StuckRule = "below_latest"
)

// StuckPolicy decides when the live transaction of a sent withdrawal is
// replaced with a higher fee.
type StuckPolicy struct {
	Rule   StuckRule
	MinAge time.Duration
}

func ParseStuckRule(s string) (StuckRule, error) {
	switch r := StuckRule(s); r {
	case StuckUnmined, StuckBelowLatest:
		return r, nil
	case "":
		return StuckUnmined, nil
	default:
		return "", fmt.Errorf("unknown stuck rule %q", s)
	}
}

// IsStuck reports whether the live transaction of w matches the rule
// against latest and was broadcast at least MinAge ago.
func (p StuckPolicy) IsStuck(w state.SentWithdrawal, latest uint64, now time.Time) bool {
	if now.Sub(w.SentAt) < p.MinAge {
		return false
	}
	if p.Rule == StuckBelowLatest {
		return w.Nonce() < latest
	}
	return w.Nonce() >= latest
}

type stuckWithdrawal struct {
	sent    state.SentWithdrawal
	request state.WithdrawalRequest
}

func (s *WithdrawalService) resubmitTransactions(ctx context.Context, latest uint64, price types.TransactionPrice) {
	now := s.now()
	var stuck []stuckWithdrawal
	s.events.Read(func(st *state.EthTransactions) {
		if !st.HasSent() {
			return
		}
		for _, w := range st.SentWithdrawals() {
			if len(stuck) == s.cfg.ResubmitBatchSize {
				break
			}
			if !s.cfg.Stuck.IsStuck(w, latest, now) {
				continue
			}
			req, _ := st.Request(w.ID)
			stuck = append(stuck, stuckWithdrawal{sent: w, request: req})
		}
	})

	for _, w := range stuck {
		log := s.logger.With(zap.Uint64("withdrawal_id", uint64(w.sent.ID)), zap.Uint64("nonce", w.sent.Nonce()))

		replacement, err := s.replacementTransaction(w, price)
		if err != nil {
			log.Warn("failed to build replacement transaction", zap.Error(err))
			continue
		}
		signed, err := s.signer.Sign(ctx, replacement)
		if err != nil {
			log.Warn("failed to sign replacement transaction", zap.Error(err))
			continue
		}
		result, err := s.chain.SendRawTransaction(ctx, signed.RawTx)
		if err != nil {
			log.Info("failed to send replacement transaction, will retry later", zap.Error(err))
			continue
		}
		switch result {
		case types.SendOk:
		case types.SendNonceTooLow:
			// the replaced transaction was mined in the meantime
			log.Info("replacement not needed, nonce already used", zap.Stringer("tx_hash", w.sent.Live().Hash))
			continue
		default:
			log.Info("failed to send replacement transaction, will retry later", zap.Stringer("result", result))
			continue
		}

		if _, err := s.events.AppendAndApply(ctx, state.ReplacedTransaction{WithdrawalID: w.sent.ID, Transaction: signed}); err != nil {
			log.Error("failed to record replaced transaction", zap.Stringer("tx_hash", signed.Hash), zap.Error(err))
			continue
		}
		log.Info("replaced stuck transaction",
			zap.Stringer("old_tx_hash", w.sent.Live().Hash), zap.Stringer("tx_hash", signed.Hash))
	}
}

func (s *WithdrawalService) replacementTransaction(w stuckWithdrawal, price types.TransactionPrice) (types.Transaction, error) {
	live := w.sent.Live().Transaction
	bumped, err := BumpPrice(live.Price(), price, s.cfg.FeeBumpPercent)
	if err != nil {
		return types.Transaction{}, err
	}
	tx, err := CreateTransaction(w.request, live.Nonce, bumped, live.ChainID)
	if err != nil {
		return types.Transaction{}, err
	}
	if tx == live {
		return types.Transaction{}, fmt.Errorf("replacement of nonce %d does not change the transaction", live.Nonce)
	}
	return tx, nil
}

func (s *WithdrawalService) createTransactions(ctx context.Context, price types.TransactionPrice) {
	var batch []state.WithdrawalRequest
	s.events.Read(func(st *state.EthTransactions) { batch = st.PendingRequests(s.cfg.CreateBatchSize) })

	for _, req := range batch {
		log := s.logger.With(zap.Uint64("withdrawal_id", uint64(req.ID)))
		var nonce uint64
		s.events.Read(func(st *state.EthTransactions) { nonce = st.NextNonce() })

		tx, err := CreateTransaction(req, nonce, price, s.cfg.ChainID)
		if errors.Is(err, ErrInsufficientAmount) {
			log.Info("withdrawal amount does not cover transaction fees, request moved back to end of queue",
				zap.Stringer("amount", req.Amount), zap.Error(err))
			if _, err := s.events.AppendAndApply(ctx, state.RescheduledWithdrawalRequest{WithdrawalID: req.ID}); err != nil {
				log.Error("failed to reschedule withdrawal request", zap.Error(err))
				return
			}
			continue
		}
		if err != nil {
			log.Error("failed to create transaction", zap.Error(err))
			return
		}

		if _, err := s.events.AppendAndApply(ctx, state.CreatedTransaction{WithdrawalID: req.ID, Transaction: tx}); err != nil {
			log.Error("failed to record created transaction", zap.Uint64("nonce", nonce), zap.Error(err))
			return
		}
		log.Debug("created transaction", zap.Uint64("nonce", nonce), zap.Stringer("value", tx.Amount))
	}
}

type signResult struct {
	entry  state.CreatedEntry
	signed types.SignedTransaction
	err    error
}

func (s *WithdrawalService) signTransactions(ctx context.Context) {
	var batch []state.CreatedEntry
	s.events.Read(func(st *state.EthTransactions) { batch = st.CreatedTransactions(s.cfg.SignBatchSize) })
	if len(batch) == 0 {
		return
	}

	results := make([]signResult, len(batch))
	var g errgroup.Group
	for i, entry := range batch {
		g.Go(func() error {
			signed, err := s.signer.Sign(ctx, entry.Transaction)
			results[i] = signResult{entry: entry, signed: signed, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		log := s.logger.With(zap.Uint64("withdrawal_id", uint64(r.entry.ID)), zap.Uint64("nonce", r.entry.Transaction.Nonce))
		if r.err != nil {
			failed++
			log.Info("failed to sign transaction", zap.Error(r.err))
			continue
		}
		if _, err := s.events.AppendAndApply(ctx, state.SignedTransaction{WithdrawalID: r.entry.ID, Transaction: r.signed}); err != nil {
			failed++
			log.Error("failed to record signed transaction", zap.Error(err))
		}
	}
	if failed > 0 {
		// Later nonces stay signed even when an earlier one failed; they are
		// mined once the gap is filled on a later round.
		s.logger.Info("errors encountered during signing", zap.Int("failed", failed), zap.Int("batch", len(batch)))
	}
}

type sendResult struct {
	entry  state.SignedEntry
	result types.SendRawTransactionResult
	err    error
}

func (s *WithdrawalService) sendTransactions(ctx context.Context, latest uint64) {
	var batch []state.SignedEntry
	s.events.Read(func(st *state.EthTransactions) {
		batch = st.SignedTransactions(latest+s.cfg.SendWindow, s.cfg.SendBatchSize)
	})
	if len(batch) == 0 {
		return
	}

	results := make([]sendResult, len(batch))
	var g errgroup.Group
	for i, entry := range batch {
		g.Go(func() error {
			res, err := s.chain.SendRawTransaction(ctx, entry.Transaction.RawTx)
			results[i] = sendResult{entry: entry, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		tx := r.entry.Transaction
		log := s.logger.With(zap.Uint64("withdrawal_id", uint64(r.entry.ID)),
			zap.Uint64("nonce", tx.Transaction.Nonce), zap.Stringer("tx_hash", tx.Hash))
		switch {
		case r.err != nil:
			log.Info("failed to send transaction, will retry later", zap.Error(r.err))
			continue
		case r.result != types.SendOk && r.result != types.SendNonceTooLow:
			log.Info("failed to send transaction, will retry later", zap.Stringer("result", r.result))
			continue
		}
		if _, err := s.events.AppendAndApply(ctx, state.SentTransaction{WithdrawalID: r.entry.ID, TxHash: tx.Hash}); err != nil {
			log.Error("failed to record sent transaction", zap.Error(err))
			continue
		}
		log.Debug("sent transaction", zap.Stringer("result", r.result))
	}
}

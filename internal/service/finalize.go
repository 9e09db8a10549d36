package service

import (
	"context"
	"errors"
	"fmt"

	"minter-core/internal/state"
	"minter-core/pkg/monitor"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrReceiptInvariant aborts a finalization: receipts do not map one to one
// onto the withdrawals expected to finalize.
var ErrReceiptInvariant = errors.New("unexpected transaction receipts")

type receiptLookup struct {
	id    state.BurnIndex
	hash  common.Hash
	found types.MaybeReceipt
}

type finalization struct {
	hash    common.Hash
	receipt types.TransactionReceipt
}

func (s *WithdrawalService) finalizeTransactions(ctx context.Context) error {
	var hasSent bool
	s.events.Read(func(st *state.EthTransactions) { hasSent = st.HasSent() })
	if !hasSent {
		return nil
	}

	finalizedCount, err := s.chain.FinalizedTransactionCount(ctx, s.signer.Address())
	if err != nil {
		s.logger.Info("failed to get finalized transaction count", zap.Error(err))
		return fmt.Errorf("finalized transaction count: %w", err)
	}

	var candidates []state.SentWithdrawal
	s.events.Read(func(st *state.EthTransactions) { candidates = st.SentBelowNonce(finalizedCount) })
	if len(candidates) > s.cfg.FinalizeBatchSize {
		candidates = candidates[:s.cfg.FinalizeBatchSize]
	}
	if len(candidates) == 0 {
		return nil
	}

	lookups, err := s.fetchReceipts(ctx, candidates)
	if err != nil {
		s.logger.Info("failed to get transaction receipts, will retry later", zap.Error(err))
		return err
	}

	receipts := make(map[state.BurnIndex]finalization, len(candidates))
	for _, l := range lookups {
		if !l.found.Found {
			s.logger.Debug("transaction was not mined, it is probably a resubmitted transaction",
				zap.Uint64("withdrawal_id", uint64(l.id)), zap.Stringer("tx_hash", l.hash))
			continue
		}
		if existing, ok := receipts[l.id]; ok {
			s.logger.Error("received receipts for two transactions of the same withdrawal, will retry later",
				zap.Uint64("withdrawal_id", uint64(l.id)),
				zap.Stringer("tx_hash", existing.hash), zap.Stringer("other_tx_hash", l.hash))
			monitor.ObserveInvariantViolation("finalize")
			return fmt.Errorf("%w: withdrawal %d has receipts for %s and %s", ErrReceiptInvariant, l.id, existing.hash, l.hash)
		}
		receipts[l.id] = finalization{hash: l.hash, receipt: l.found.Receipt}
	}

	for _, c := range candidates {
		if _, ok := receipts[c.ID]; !ok {
			s.logger.Error("no receipt for a withdrawal below the finalized count",
				zap.Uint64("withdrawal_id", uint64(c.ID)), zap.Uint64("nonce", c.Nonce()),
				zap.Uint64("finalized_count", finalizedCount))
			monitor.ObserveInvariantViolation("finalize")
			return fmt.Errorf("%w: withdrawal %d with nonce %d below finalized count %d has no receipt",
				ErrReceiptInvariant, c.ID, c.Nonce(), finalizedCount)
		}
	}

	finalized := 0
	for _, c := range candidates {
		f := receipts[c.ID]
		log := s.logger.With(zap.Uint64("withdrawal_id", uint64(c.ID)), zap.Stringer("tx_hash", f.hash))
		if _, err := s.events.AppendAndApply(ctx, state.FinalizedTransaction{WithdrawalID: c.ID, TxHash: f.hash, Receipt: f.receipt}); err != nil {
			log.Error("failed to record finalized transaction", zap.Error(err))
			return fmt.Errorf("finalize withdrawal %d: %w", c.ID, err)
		}
		for _, tx := range c.Transactions {
			s.receipts.Remove(tx.Hash)
		}
		finalized++
		log.Info("finalized transaction", zap.Stringer("status", f.receipt.Status), zap.Uint64("block", f.receipt.BlockNumber))
	}
	monitor.ObserveFinalized(finalized)
	return nil
}

// fetchReceipts queries every hash broadcast for the candidates concurrently.
// Receipts already seen below the finalized count come from the cache.
func (s *WithdrawalService) fetchReceipts(ctx context.Context, candidates []state.SentWithdrawal) ([]receiptLookup, error) {
	var lookups []receiptLookup
	for _, c := range candidates {
		for _, tx := range c.Transactions {
			lookups = append(lookups, receiptLookup{id: c.ID, hash: tx.Hash})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range lookups {
		if r, ok := s.receipts.Get(lookups[i].hash); ok {
			lookups[i].found = types.MaybeReceipt{Found: true, Receipt: r}
			continue
		}
		g.Go(func() error {
			r, err := s.chain.TransactionReceipt(gctx, lookups[i].hash)
			if err != nil {
				return fmt.Errorf("receipt of %s for withdrawal %d: %w", lookups[i].hash, lookups[i].id, err)
			}
			lookups[i].found = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, l := range lookups {
		if l.found.Found {
			s.receipts.Add(l.hash, l.found.Receipt)
		}
	}
	return lookups, nil
}

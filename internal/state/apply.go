package state

import (
	"errors"
	"fmt"

	"minter-core/pkg/wallet/types"
)

var (
	ErrDuplicateWithdrawal = errors.New("withdrawal already exists")
	ErrUnknownWithdrawal   = errors.New("withdrawal not found in the expected collection")
	ErrNonceMismatch       = errors.New("transaction nonce mismatch")
	ErrAlreadyReimbursed   = errors.New("withdrawal already reimbursed")
	ErrInvalidTransition   = errors.New("invalid state transition")
)

// Validate checks that ev can be applied to the current state without
// modifying it. An event that fails validation must not be appended.
func (s *EthTransactions) Validate(ev Event) error {
	switch p := ev.Payload.(type) {
	case Initialized:
		if !s.Fresh() {
			return fmt.Errorf("%w: nonce already initialized at %d", ErrInvalidTransition, s.nextNonce)
		}

	case AcceptedWithdrawalRequest:
		if p.Request.ID == 0 {
			return fmt.Errorf("%w: withdrawal id 0", ErrInvalidTransition)
		}
		if _, ok := s.requests[p.Request.ID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateWithdrawal, p.Request.ID)
		}

	case RescheduledWithdrawalRequest:
		if s.pendingIndex(p.WithdrawalID) < 0 {
			return fmt.Errorf("%w: %d is not pending", ErrUnknownWithdrawal, p.WithdrawalID)
		}

	case CreatedTransaction:
		if s.pendingIndex(p.WithdrawalID) < 0 {
			return fmt.Errorf("%w: %d is not pending", ErrUnknownWithdrawal, p.WithdrawalID)
		}
		if p.Transaction.Nonce != s.nextNonce {
			return fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, s.nextNonce, p.Transaction.Nonce)
		}

	case SignedTransaction:
		tx, ok := s.created[p.WithdrawalID]
		if !ok {
			return fmt.Errorf("%w: %d is not created", ErrUnknownWithdrawal, p.WithdrawalID)
		}
		if tx != p.Transaction.Transaction {
			return fmt.Errorf("%w: signed payload differs from created transaction of %d", ErrInvalidTransition, p.WithdrawalID)
		}

	case SentTransaction:
		tx, ok := s.signed[p.WithdrawalID]
		if !ok {
			return fmt.Errorf("%w: %d is not signed", ErrUnknownWithdrawal, p.WithdrawalID)
		}
		if tx.Hash != p.TxHash {
			return fmt.Errorf("%w: hash %s is not the signed transaction of %d", ErrInvalidTransition, p.TxHash, p.WithdrawalID)
		}
		if other, taken := s.sentByNonce[tx.Transaction.Nonce]; taken {
			return fmt.Errorf("%w: nonce %d already sent for %d", ErrNonceMismatch, tx.Transaction.Nonce, other)
		}

	case ReplacedTransaction:
		w, ok := s.sent[p.WithdrawalID]
		if !ok {
			return fmt.Errorf("%w: %d is not sent", ErrUnknownWithdrawal, p.WithdrawalID)
		}
		if p.Transaction.Transaction.Nonce != w.Nonce() {
			return fmt.Errorf("%w: replacement nonce %d, live nonce %d", ErrNonceMismatch, p.Transaction.Transaction.Nonce, w.Nonce())
		}
		if _, seen := s.sentByHash[p.Transaction.Hash]; seen {
			return fmt.Errorf("%w: hash %s already broadcast", ErrInvalidTransition, p.Transaction.Hash)
		}

	case FinalizedTransaction:
		if _, ok := s.sent[p.WithdrawalID]; !ok {
			return fmt.Errorf("%w: %d is not sent", ErrUnknownWithdrawal, p.WithdrawalID)
		}
		if owner, ok := s.sentByHash[p.TxHash]; !ok || owner != p.WithdrawalID {
			return fmt.Errorf("%w: hash %s does not belong to %d", ErrInvalidTransition, p.TxHash, p.WithdrawalID)
		}
		if p.Receipt.TransactionHash != p.TxHash {
			return fmt.Errorf("%w: receipt is for %s, not %s", ErrInvalidTransition, p.Receipt.TransactionHash, p.TxHash)
		}

	case ReimbursedEthWithdrawal:
		if _, done := s.reimbursed[p.WithdrawalID]; done {
			return fmt.Errorf("%w: %d", ErrAlreadyReimbursed, p.WithdrawalID)
		}
		req, ok := s.reimbursementQueue[p.WithdrawalID]
		if !ok {
			return fmt.Errorf("%w: %d is not queued for reimbursement", ErrUnknownWithdrawal, p.WithdrawalID)
		}
		if req.ReimbursedAmount != p.ReimbursedAmount {
			return fmt.Errorf("%w: reimbursed %s, queued %s", ErrInvalidTransition, p.ReimbursedAmount, req.ReimbursedAmount)
		}

	default:
		return fmt.Errorf("%w: unsupported event %T", ErrInvalidTransition, ev.Payload)
	}
	return nil
}

// Apply validates ev and applies it. The state is unchanged when an error is returned.
func (s *EthTransactions) Apply(ev Event) error {
	if err := s.Validate(ev); err != nil {
		return err
	}
	s.mutate(ev)
	return nil
}

func (s *EthTransactions) mutate(ev Event) {
	switch p := ev.Payload.(type) {
	case Initialized:
		s.nextNonce = p.NextTransactionNonce
		s.initialized = true

	case AcceptedWithdrawalRequest:
		s.requests[p.Request.ID] = p.Request
		s.pending = append(s.pending, p.Request)

	case RescheduledWithdrawalRequest:
		i := s.pendingIndex(p.WithdrawalID)
		req := s.pending[i]
		s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
		s.pending = append(s.pending, req)

	case CreatedTransaction:
		i := s.pendingIndex(p.WithdrawalID)
		s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
		s.created[p.WithdrawalID] = p.Transaction
		s.nextNonce++

	case SignedTransaction:
		delete(s.created, p.WithdrawalID)
		s.signed[p.WithdrawalID] = p.Transaction

	case SentTransaction:
		tx := s.signed[p.WithdrawalID]
		delete(s.signed, p.WithdrawalID)
		s.sent[p.WithdrawalID] = SentWithdrawal{
			ID:           p.WithdrawalID,
			Transactions: []types.SignedTransaction{tx},
			SentAt:       ev.Timestamp,
		}
		s.sentByNonce[tx.Transaction.Nonce] = p.WithdrawalID
		s.sentByHash[tx.Hash] = p.WithdrawalID

	case ReplacedTransaction:
		w := s.sent[p.WithdrawalID]
		txs := make([]types.SignedTransaction, 0, len(w.Transactions)+1)
		txs = append(txs, w.Transactions...)
		w.Transactions = append(txs, p.Transaction)
		w.SentAt = ev.Timestamp
		s.sent[p.WithdrawalID] = w
		s.sentByHash[p.Transaction.Hash] = p.WithdrawalID

	case FinalizedTransaction:
		w := s.sent[p.WithdrawalID]
		var mined types.SignedTransaction
		for _, tx := range w.Transactions {
			delete(s.sentByHash, tx.Hash)
			if tx.Hash == p.TxHash {
				mined = tx
			}
		}
		delete(s.sentByNonce, w.Nonce())
		delete(s.sent, p.WithdrawalID)
		s.finalized[p.WithdrawalID] = FinalizedWithdrawal{Transaction: mined, Receipt: p.Receipt}

		if p.Receipt.Status == types.TransactionStatusFailure {
			s.queueReimbursement(p.WithdrawalID, p.Receipt)
		}

	case ReimbursedEthWithdrawal:
		delete(s.reimbursementQueue, p.WithdrawalID)
		s.reimbursed[p.WithdrawalID] = ReimbursedWithdrawal{
			WithdrawalID:      p.WithdrawalID,
			ReimbursedInBlock: p.ReimbursedInBlock,
			ReimbursedAmount:  p.ReimbursedAmount,
		}
	}
}

// queueReimbursement returns the burned amount minus the fee actually paid.
func (s *EthTransactions) queueReimbursement(id BurnIndex, receipt types.TransactionReceipt) {
	req := s.requests[id]
	fee, ok := receipt.EffectiveTransactionFee()
	if !ok {
		return
	}
	amount := req.Amount.SaturatingSub(fee)
	if amount.IsZero() {
		return
	}
	s.reimbursementQueue[id] = ReimbursementRequest{
		WithdrawalID:     id,
		To:               req.Owner,
		ToSubaccount:     req.Subaccount,
		ReimbursedAmount: amount,
		TransactionHash:  receipt.TransactionHash,
	}
}

// Replay rebuilds the state from an event sequence starting from empty.
func Replay(events []Event) (*EthTransactions, error) {
	s := NewEthTransactions()
	for i, ev := range events {
		if err := s.Apply(ev); err != nil {
			return nil, fmt.Errorf("replay event %d (%s): %w", i, ev.Type(), err)
		}
	}
	return s, nil
}

// CheckInvariants verifies that every withdrawal sits in exactly one
// collection and that the sent indexes agree with the sent collection.
func (s *EthTransactions) CheckInvariants() error {
	seen := make(map[BurnIndex]Stage)
	mark := func(id BurnIndex, stage Stage) error {
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("withdrawal %d is both %s and %s", id, prev, stage)
		}
		seen[id] = stage
		return nil
	}

	for _, r := range s.pending {
		if err := mark(r.ID, StagePending); err != nil {
			return err
		}
	}
	nonces := make(map[uint64]BurnIndex)
	checkNonce := func(id BurnIndex, nonce uint64) error {
		if other, dup := nonces[nonce]; dup {
			return fmt.Errorf("nonce %d is live for both %d and %d", nonce, other, id)
		}
		if nonce >= s.nextNonce {
			return fmt.Errorf("nonce %d of %d was never assigned", nonce, id)
		}
		nonces[nonce] = id
		return nil
	}
	for id, tx := range s.created {
		if err := mark(id, StageCreated); err != nil {
			return err
		}
		if err := checkNonce(id, tx.Nonce); err != nil {
			return err
		}
	}
	for id, tx := range s.signed {
		if err := mark(id, StageSigned); err != nil {
			return err
		}
		if err := checkNonce(id, tx.Transaction.Nonce); err != nil {
			return err
		}
	}
	for id, w := range s.sent {
		if err := mark(id, StageSent); err != nil {
			return err
		}
		if err := checkNonce(id, w.Nonce()); err != nil {
			return err
		}
		if s.sentByNonce[w.Nonce()] != id {
			return fmt.Errorf("nonce index of %d is stale", id)
		}
		for _, tx := range w.Transactions {
			if s.sentByHash[tx.Hash] != id {
				return fmt.Errorf("hash index of %d misses %s", id, tx.Hash)
			}
		}
	}
	for id := range s.finalized {
		if err := mark(id, StageFinalized); err != nil {
			return err
		}
	}
	if len(seen) != len(s.requests) {
		return fmt.Errorf("%d accepted requests but %d tracked withdrawals", len(s.requests), len(seen))
	}
	for id := range s.reimbursementQueue {
		if seen[id] != StageFinalized {
			return fmt.Errorf("reimbursement queued for non-finalized withdrawal %d", id)
		}
		if _, dup := s.reimbursed[id]; dup {
			return fmt.Errorf("withdrawal %d both queued and reimbursed", id)
		}
	}
	return nil
}

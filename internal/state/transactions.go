package state

import (
	"slices"
	"sort"

	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
)

// EthTransactions is the single owner of withdrawal state.
//
// A withdrawal is in exactly one of pending, created, signed, sent and
// finalized. Reimbursements are a side channel of finalized withdrawals.
// It is only mutated through Apply.
type EthTransactions struct {
	pending   []WithdrawalRequest
	created   map[BurnIndex]types.Transaction
	signed    map[BurnIndex]types.SignedTransaction
	sent      map[BurnIndex]SentWithdrawal
	finalized map[BurnIndex]FinalizedWithdrawal

	sentByNonce map[uint64]BurnIndex
	sentByHash  map[common.Hash]BurnIndex

	reimbursementQueue map[BurnIndex]ReimbursementRequest
	reimbursed         map[BurnIndex]ReimbursedWithdrawal

	// requests keeps every accepted request for amount and owner lookups.
	requests    map[BurnIndex]WithdrawalRequest
	nextNonce   uint64
	initialized bool
}

func NewEthTransactions() *EthTransactions {
	return &EthTransactions{
		created:            make(map[BurnIndex]types.Transaction),
		signed:             make(map[BurnIndex]types.SignedTransaction),
		sent:               make(map[BurnIndex]SentWithdrawal),
		finalized:          make(map[BurnIndex]FinalizedWithdrawal),
		sentByNonce:        make(map[uint64]BurnIndex),
		sentByHash:         make(map[common.Hash]BurnIndex),
		reimbursementQueue: make(map[BurnIndex]ReimbursementRequest),
		reimbursed:         make(map[BurnIndex]ReimbursedWithdrawal),
		requests:           make(map[BurnIndex]WithdrawalRequest),
	}
}

// NothingToProcess reports whether a pipeline round would have no work.
func (s *EthTransactions) NothingToProcess() bool {
	return len(s.pending) == 0 && len(s.created) == 0 && len(s.signed) == 0 && len(s.sent) == 0
}

// Fresh reports whether no nonce has been seeded or consumed yet.
func (s *EthTransactions) Fresh() bool {
	return !s.initialized && s.nextNonce == 0 && len(s.requests) == 0
}

func (s *EthTransactions) HasPending() bool { return len(s.pending) > 0 }

func (s *EthTransactions) HasSent() bool { return len(s.sent) > 0 }

// NextNonce is the nonce the next created transaction gets.
func (s *EthTransactions) NextNonce() uint64 { return s.nextNonce }

func (s *EthTransactions) Request(id BurnIndex) (WithdrawalRequest, bool) {
	r, ok := s.requests[id]
	return r, ok
}

// PendingRequests returns up to limit requests from the front of the queue.
func (s *EthTransactions) PendingRequests(limit int) []WithdrawalRequest {
	n := min(limit, len(s.pending))
	out := make([]WithdrawalRequest, n)
	copy(out, s.pending[:n])
	return out
}

// CreatedTransactions returns up to limit unsigned transactions, lowest nonce first.
func (s *EthTransactions) CreatedTransactions(limit int) []CreatedEntry {
	out := make([]CreatedEntry, 0, len(s.created))
	for id, tx := range s.created {
		out = append(out, CreatedEntry{ID: id, Transaction: tx})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Transaction.Nonce < out[j].Transaction.Nonce })
	return out[:min(limit, len(out))]
}

// SignedTransactions returns up to limit signed transactions with nonce below
// maxNonceExclusive, lowest nonce first.
func (s *EthTransactions) SignedTransactions(maxNonceExclusive uint64, limit int) []SignedEntry {
	out := make([]SignedEntry, 0, len(s.signed))
	for id, tx := range s.signed {
		if tx.Transaction.Nonce < maxNonceExclusive {
			out = append(out, SignedEntry{ID: id, Transaction: tx})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Transaction.Transaction.Nonce < out[j].Transaction.Transaction.Nonce
	})
	return out[:min(limit, len(out))]
}

// SentWithdrawals returns every broadcast withdrawal, lowest nonce first.
func (s *EthTransactions) SentWithdrawals() []SentWithdrawal {
	return s.sentWhere(func(SentWithdrawal) bool { return true })
}

// SentBelowNonce returns broadcast withdrawals whose nonce is below n.
// These are the finalization candidates once n is the finalized count.
func (s *EthTransactions) SentBelowNonce(n uint64) []SentWithdrawal {
	return s.sentWhere(func(w SentWithdrawal) bool { return w.Nonce() < n })
}

func (s *EthTransactions) sentWhere(keep func(SentWithdrawal) bool) []SentWithdrawal {
	out := make([]SentWithdrawal, 0, len(s.sent))
	for _, w := range s.sent {
		if keep(w) {
			w.Transactions = slices.Clone(w.Transactions)
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce() < out[j].Nonce() })
	return out
}

// ReimbursementRequests returns the queue ordered by withdrawal id.
func (s *EthTransactions) ReimbursementRequests() []ReimbursementRequest {
	out := make([]ReimbursementRequest, 0, len(s.reimbursementQueue))
	for _, r := range s.reimbursementQueue {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WithdrawalID < out[j].WithdrawalID })
	return out
}

func (s *EthTransactions) Reimbursed(id BurnIndex) (ReimbursedWithdrawal, bool) {
	r, ok := s.reimbursed[id]
	return r, ok
}

func (s *EthTransactions) Finalized(id BurnIndex) (FinalizedWithdrawal, bool) {
	f, ok := s.finalized[id]
	return f, ok
}

// WithdrawalBySentHash resolves any broadcast hash, live or replaced.
func (s *EthTransactions) WithdrawalBySentHash(hash common.Hash) (BurnIndex, bool) {
	id, ok := s.sentByHash[hash]
	return id, ok
}

// StageOf returns the collection holding id.
func (s *EthTransactions) StageOf(id BurnIndex) Stage {
	if _, ok := s.created[id]; ok {
		return StageCreated
	}
	if _, ok := s.signed[id]; ok {
		return StageSigned
	}
	if _, ok := s.sent[id]; ok {
		return StageSent
	}
	if _, ok := s.finalized[id]; ok {
		return StageFinalized
	}
	if s.pendingIndex(id) >= 0 {
		return StagePending
	}
	return StageUnknown
}

func (s *EthTransactions) pendingIndex(id BurnIndex) int {
	return slices.IndexFunc(s.pending, func(r WithdrawalRequest) bool { return r.ID == id })
}

// Status builds the read-only view of one withdrawal.
func (s *EthTransactions) Status(id BurnIndex) WithdrawalStatus {
	st := WithdrawalStatus{ID: id, Stage: s.StageOf(id)}
	if req, ok := s.requests[id]; ok {
		st.Request = &req
	}

	switch st.Stage {
	case StageCreated:
		nonce := s.created[id].Nonce
		st.Nonce = &nonce
	case StageSigned:
		tx := s.signed[id]
		nonce, hash := tx.Transaction.Nonce, tx.Hash
		st.Nonce, st.TxHash = &nonce, &hash
	case StageSent:
		w := s.sent[id]
		nonce, hash := w.Nonce(), w.Live().Hash
		st.Nonce, st.TxHash = &nonce, &hash
		for _, tx := range w.Transactions {
			st.Hashes = append(st.Hashes, tx.Hash)
		}
	case StageFinalized:
		f := s.finalized[id]
		nonce, hash, receipt := f.Transaction.Transaction.Nonce, f.Transaction.Hash, f.Receipt
		st.Nonce, st.TxHash, st.Receipt = &nonce, &hash, &receipt
	}

	if _, ok := s.reimbursementQueue[id]; ok {
		st.Reimbursement = ReimbursementQueued
	}
	if r, ok := s.reimbursed[id]; ok {
		block := r.ReimbursedInBlock
		st.Reimbursement = ReimbursementReimbursed
		st.ReimbursedInBlock = &block
	}
	return st
}

// Counts returns the size of every collection.
func (s *EthTransactions) Counts() map[string]int {
	return map[string]int{
		string(StagePending):   len(s.pending),
		string(StageCreated):   len(s.created),
		string(StageSigned):    len(s.signed),
		string(StageSent):      len(s.sent),
		string(StageFinalized): len(s.finalized),
		"reimbursement_queue":  len(s.reimbursementQueue),
		"reimbursed":           len(s.reimbursed),
	}
}

// Clone returns a deep copy.
func (s *EthTransactions) Clone() *EthTransactions {
	c := NewEthTransactions()
	if s.pending != nil {
		c.pending = slices.Clone(s.pending)
	}
	for k, v := range s.created {
		c.created[k] = v
	}
	for k, v := range s.signed {
		c.signed[k] = v
	}
	for k, v := range s.sent {
		v.Transactions = slices.Clone(v.Transactions)
		c.sent[k] = v
	}
	for k, v := range s.finalized {
		c.finalized[k] = v
	}
	for k, v := range s.sentByNonce {
		c.sentByNonce[k] = v
	}
	for k, v := range s.sentByHash {
		c.sentByHash[k] = v
	}
	for k, v := range s.reimbursementQueue {
		c.reimbursementQueue[k] = v
	}
	for k, v := range s.reimbursed {
		c.reimbursed[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	c.nextNonce = s.nextNonce
	c.initialized = s.initialized
	return c
}

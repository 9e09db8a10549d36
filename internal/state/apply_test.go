package state

import (
	"testing"
	"time"

	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func request(id BurnIndex, amount uint64) WithdrawalRequest {
	return WithdrawalRequest{
		ID:          id,
		Destination: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Amount:      types.NewWei(amount),
		Owner:       "user-1",
		CreatedAt:   t0,
	}
}

func unsigned(req WithdrawalRequest, nonce uint64) types.Transaction {
	return types.Transaction{
		ChainID:              1,
		Nonce:                nonce,
		MaxPriorityFeePerGas: types.NewWei(1),
		MaxFeePerGas:         types.NewWei(2),
		GasLimit:             types.DefaultGasLimit,
		Destination:          req.Destination,
		Amount:               req.Amount,
	}
}

func signedWith(tx types.Transaction, salt byte) types.SignedTransaction {
	hash := common.Hash{}
	hash[0] = salt
	hash[30] = byte(tx.Nonce >> 8)
	hash[31] = byte(tx.Nonce)
	return types.SignedTransaction{Transaction: tx, RawTx: []byte{salt, byte(tx.Nonce)}, Hash: hash}
}

func receiptFor(hash common.Hash, status types.TransactionStatus) types.TransactionReceipt {
	return types.TransactionReceipt{
		BlockHash:         common.HexToHash("0xb1"),
		BlockNumber:       100,
		EffectiveGasPrice: types.NewWei(10),
		GasUsed:           21_000,
		Status:            status,
		TransactionHash:   hash,
	}
}

// lifecycle drives one withdrawal to sent and returns the emitted events.
func lifecycle(t *testing.T, s *EthTransactions, req WithdrawalRequest) []Event {
	t.Helper()
	tx := unsigned(req, s.NextNonce())
	stx := signedWith(tx, 1)
	events := []Event{
		NewEvent(t0, AcceptedWithdrawalRequest{Request: req}),
		NewEvent(t0.Add(time.Second), CreatedTransaction{WithdrawalID: req.ID, Transaction: tx}),
		NewEvent(t0.Add(2*time.Second), SignedTransaction{WithdrawalID: req.ID, Transaction: stx}),
		NewEvent(t0.Add(3*time.Second), SentTransaction{WithdrawalID: req.ID, TxHash: stx.Hash}),
	}
	for _, ev := range events {
		require.NoError(t, s.Apply(ev))
	}
	return events
}

func TestApplyHappyPath(t *testing.T) {
	s := NewEthTransactions()
	req := request(7, 1_000_000)
	events := lifecycle(t, s, req)
	require.NoError(t, s.CheckInvariants())

	assert.Equal(t, StageSent, s.StageOf(7))
	assert.Equal(t, uint64(1), s.NextNonce())
	sent := s.SentWithdrawals()
	require.Len(t, sent, 1)
	assert.Equal(t, t0.Add(3*time.Second), sent[0].SentAt)

	hash := sent[0].Live().Hash
	id, ok := s.WithdrawalBySentHash(hash)
	require.True(t, ok)
	assert.Equal(t, BurnIndex(7), id)

	fin := NewEvent(t0.Add(time.Minute), FinalizedTransaction{
		WithdrawalID: 7, TxHash: hash, Receipt: receiptFor(hash, types.TransactionStatusSuccess),
	})
	require.NoError(t, s.Apply(fin))
	require.NoError(t, s.CheckInvariants())

	assert.Equal(t, StageFinalized, s.StageOf(7))
	assert.False(t, s.HasSent())
	assert.True(t, s.NothingToProcess())
	assert.Empty(t, s.ReimbursementRequests())
	_, ok = s.WithdrawalBySentHash(hash)
	assert.False(t, ok)

	replayed, err := Replay(append(events, fin))
	require.NoError(t, err)
	assert.Equal(t, s, replayed)
}

func TestApplyRejectsWithoutMutation(t *testing.T) {
	s := NewEthTransactions()
	req := request(1, 100)
	require.NoError(t, s.Apply(NewEvent(t0, AcceptedWithdrawalRequest{Request: req})))
	before := s.Clone()

	cases := []struct {
		name string
		ev   Payload
		err  error
	}{
		{"duplicate id", AcceptedWithdrawalRequest{Request: req}, ErrDuplicateWithdrawal},
		{"zero id", AcceptedWithdrawalRequest{Request: request(0, 1)}, ErrInvalidTransition},
		{"nonce gap", CreatedTransaction{WithdrawalID: 1, Transaction: unsigned(req, 3)}, ErrNonceMismatch},
		{"create unknown", CreatedTransaction{WithdrawalID: 2, Transaction: unsigned(req, 0)}, ErrUnknownWithdrawal},
		{"sign before create", SignedTransaction{WithdrawalID: 1, Transaction: signedWith(unsigned(req, 0), 1)}, ErrUnknownWithdrawal},
		{"send before sign", SentTransaction{WithdrawalID: 1}, ErrUnknownWithdrawal},
		{"reschedule unknown", RescheduledWithdrawalRequest{WithdrawalID: 9}, ErrUnknownWithdrawal},
		{"reimburse unknown", ReimbursedEthWithdrawal{WithdrawalID: 1}, ErrUnknownWithdrawal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Apply(NewEvent(t0, tc.ev))
			require.ErrorIs(t, err, tc.err)
			assert.Equal(t, before, s)
		})
	}
}

func TestSignedPayloadMustMatchCreated(t *testing.T) {
	s := NewEthTransactions()
	req := request(1, 100)
	tx := unsigned(req, 0)
	require.NoError(t, s.Apply(NewEvent(t0, AcceptedWithdrawalRequest{Request: req})))
	require.NoError(t, s.Apply(NewEvent(t0, CreatedTransaction{WithdrawalID: 1, Transaction: tx})))

	other := tx
	other.Amount = types.NewWei(99)
	err := s.Apply(NewEvent(t0, SignedTransaction{WithdrawalID: 1, Transaction: signedWith(other, 1)}))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StageCreated, s.StageOf(1))
}

func TestNoncesStrictlyIncreasing(t *testing.T) {
	s := NewEthTransactions()
	for i := BurnIndex(1); i <= 5; i++ {
		require.NoError(t, s.Apply(NewEvent(t0, AcceptedWithdrawalRequest{Request: request(i, 100)})))
	}
	var nonces []uint64
	for _, req := range s.PendingRequests(10) {
		tx := unsigned(req, s.NextNonce())
		require.NoError(t, s.Apply(NewEvent(t0, CreatedTransaction{WithdrawalID: req.ID, Transaction: tx})))
		nonces = append(nonces, tx.Nonce)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, nonces)
	require.NoError(t, s.CheckInvariants())

	created := s.CreatedTransactions(3)
	require.Len(t, created, 3)
	assert.Equal(t, uint64(0), created[0].Transaction.Nonce)
	assert.Equal(t, uint64(2), created[2].Transaction.Nonce)
}

func TestRescheduleMovesToBackUnchanged(t *testing.T) {
	s := NewEthTransactions()
	for i := BurnIndex(1); i <= 3; i++ {
		require.NoError(t, s.Apply(NewEvent(t0, AcceptedWithdrawalRequest{Request: request(i, uint64(i)*100)})))
	}
	require.NoError(t, s.Apply(NewEvent(t0, RescheduledWithdrawalRequest{WithdrawalID: 1})))

	pending := s.PendingRequests(10)
	require.Len(t, pending, 3)
	assert.Equal(t, BurnIndex(2), pending[0].ID)
	assert.Equal(t, BurnIndex(3), pending[1].ID)
	assert.Equal(t, request(1, 100), pending[2])
	assert.Equal(t, uint64(0), s.NextNonce())
}

func TestReplacedKeepsOldHashesIndexed(t *testing.T) {
	s := NewEthTransactions()
	req := request(3, 1_000_000)
	lifecycle(t, s, req)
	original := s.SentWithdrawals()[0].Live()

	bumped := original.Transaction
	bumped.MaxFeePerGas = types.NewWei(5)
	replacement := signedWith(bumped, 2)
	require.NoError(t, s.Apply(NewEvent(t0.Add(time.Hour), ReplacedTransaction{WithdrawalID: 3, Transaction: replacement})))
	require.NoError(t, s.CheckInvariants())

	w := s.SentWithdrawals()[0]
	assert.Len(t, w.Transactions, 2)
	assert.Equal(t, replacement.Hash, w.Live().Hash)
	assert.Equal(t, t0.Add(time.Hour), w.SentAt)
	for _, h := range []common.Hash{original.Hash, replacement.Hash} {
		id, ok := s.WithdrawalBySentHash(h)
		require.True(t, ok)
		assert.Equal(t, BurnIndex(3), id)
	}

	t.Run("same hash twice", func(t *testing.T) {
		err := s.Apply(NewEvent(t0, ReplacedTransaction{WithdrawalID: 3, Transaction: replacement}))
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
	t.Run("other nonce", func(t *testing.T) {
		wrong := bumped
		wrong.Nonce = 9
		err := s.Apply(NewEvent(t0, ReplacedTransaction{WithdrawalID: 3, Transaction: signedWith(wrong, 3)}))
		require.ErrorIs(t, err, ErrNonceMismatch)
	})

	// the original can still be the one that got mined
	require.NoError(t, s.Apply(NewEvent(t0, FinalizedTransaction{
		WithdrawalID: 3, TxHash: original.Hash, Receipt: receiptFor(original.Hash, types.TransactionStatusSuccess),
	})))
	fin, ok := s.Finalized(3)
	require.True(t, ok)
	assert.Equal(t, original, fin.Transaction)
	_, ok = s.WithdrawalBySentHash(replacement.Hash)
	assert.False(t, ok)
}

func TestFailedReceiptQueuesReimbursement(t *testing.T) {
	s := NewEthTransactions()
	req := request(4, 1_000_000)
	lifecycle(t, s, req)
	hash := s.SentWithdrawals()[0].Live().Hash

	require.NoError(t, s.Apply(NewEvent(t0, FinalizedTransaction{
		WithdrawalID: 4, TxHash: hash, Receipt: receiptFor(hash, types.TransactionStatusFailure),
	})))
	queue := s.ReimbursementRequests()
	require.Len(t, queue, 1)
	// 1_000_000 - 21_000 * 10
	assert.Equal(t, "790000", queue[0].ReimbursedAmount.String())
	assert.Equal(t, "user-1", queue[0].To)
	assert.Equal(t, ReimbursementQueued, s.Status(4).Reimbursement)
	require.NoError(t, s.CheckInvariants())

	paid := NewEvent(t0, ReimbursedEthWithdrawal{WithdrawalID: 4, ReimbursedInBlock: 55, ReimbursedAmount: queue[0].ReimbursedAmount})
	require.NoError(t, s.Apply(paid))
	assert.Empty(t, s.ReimbursementRequests())

	status := s.Status(4)
	assert.Equal(t, ReimbursementReimbursed, status.Reimbursement)
	require.NotNil(t, status.ReimbursedInBlock)
	assert.Equal(t, uint64(55), *status.ReimbursedInBlock)

	require.ErrorIs(t, s.Apply(paid), ErrAlreadyReimbursed)
}

func TestFailedReceiptWithFeeAboveAmountQueuesNothing(t *testing.T) {
	s := NewEthTransactions()
	lifecycle(t, s, request(5, 1000))
	hash := s.SentWithdrawals()[0].Live().Hash

	require.NoError(t, s.Apply(NewEvent(t0, FinalizedTransaction{
		WithdrawalID: 5, TxHash: hash, Receipt: receiptFor(hash, types.TransactionStatusFailure),
	})))
	assert.Empty(t, s.ReimbursementRequests())
}

func TestFinalizeRejectsForeignHash(t *testing.T) {
	s := NewEthTransactions()
	lifecycle(t, s, request(1, 1_000_000))
	lifecycle(t, s, request(2, 1_000_000))
	sent := s.SentWithdrawals()
	before := s.Clone()

	err := s.Apply(NewEvent(t0, FinalizedTransaction{
		WithdrawalID: 1, TxHash: sent[1].Live().Hash, Receipt: receiptFor(sent[1].Live().Hash, types.TransactionStatusSuccess),
	}))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, s)
}

func TestSentBelowNonce(t *testing.T) {
	s := NewEthTransactions()
	for i := BurnIndex(1); i <= 3; i++ {
		lifecycle(t, s, request(i, 1_000_000))
	}
	below := s.SentBelowNonce(2)
	require.Len(t, below, 2)
	assert.Equal(t, BurnIndex(1), below[0].ID)
	assert.Equal(t, BurnIndex(2), below[1].ID)

	// callers get their own copy of the hash list
	below[0].Transactions[0].Hash = common.Hash{}
	assert.NotEqual(t, common.Hash{}, s.SentWithdrawals()[0].Live().Hash)
}

func TestReplayMatchesIncremental(t *testing.T) {
	s := NewEthTransactions()
	var log []Event
	apply := func(p Payload, at time.Duration) {
		ev := NewEvent(t0.Add(at), p)
		require.NoError(t, s.Apply(ev))
		log = append(log, ev)
	}
	for i := BurnIndex(1); i <= 4; i++ {
		apply(AcceptedWithdrawalRequest{Request: request(i, uint64(i)*500_000)}, 0)
	}
	apply(RescheduledWithdrawalRequest{WithdrawalID: 1}, time.Second)
	for _, req := range s.PendingRequests(3) {
		apply(CreatedTransaction{WithdrawalID: req.ID, Transaction: unsigned(req, s.NextNonce())}, 2*time.Second)
	}
	for _, c := range s.CreatedTransactions(2) {
		apply(SignedTransaction{WithdrawalID: c.ID, Transaction: signedWith(c.Transaction, 1)}, 3*time.Second)
	}
	for _, sg := range s.SignedTransactions(1, 10) {
		apply(SentTransaction{WithdrawalID: sg.ID, TxHash: sg.Transaction.Hash}, 4*time.Second)
	}
	live := s.SentWithdrawals()[0]
	apply(ReplacedTransaction{WithdrawalID: live.ID, Transaction: signedWith(live.Live().Transaction, 9)}, 5*time.Second)
	require.NoError(t, s.CheckInvariants())

	replayed, err := Replay(log)
	require.NoError(t, err)
	assert.Equal(t, s, replayed)
	assert.Equal(t, s.Counts(), replayed.Counts())

	_, err = Replay(append(log, log[0]))
	require.ErrorIs(t, err, ErrDuplicateWithdrawal)
}

func TestStatusView(t *testing.T) {
	s := NewEthTransactions()
	assert.Equal(t, StageUnknown, s.Status(42).Stage)

	lifecycle(t, s, request(42, 1_000_000))
	st := s.Status(42)
	assert.Equal(t, StageSent, st.Stage)
	require.NotNil(t, st.Nonce)
	assert.Equal(t, uint64(0), *st.Nonce)
	require.NotNil(t, st.TxHash)
	assert.Equal(t, []common.Hash{*st.TxHash}, st.Hashes)
	require.NotNil(t, st.Request)
	assert.Equal(t, BurnIndex(42), st.Request.ID)
}

func TestInitializedSeedsNextNonce(t *testing.T) {
	s := NewEthTransactions()
	require.True(t, s.Fresh())
	require.NoError(t, s.Apply(NewEvent(t0, Initialized{NextTransactionNonce: 3})))
	assert.False(t, s.Fresh())
	assert.Equal(t, uint64(3), s.NextNonce())

	err := s.Apply(NewEvent(t0, Initialized{NextTransactionNonce: 5}))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, uint64(3), s.NextNonce())

	req := request(1, 1_000_000)
	require.NoError(t, s.Apply(NewEvent(t0, AcceptedWithdrawalRequest{Request: req})))
	err = s.Apply(NewEvent(t0, CreatedTransaction{WithdrawalID: 1, Transaction: unsigned(req, 0)}))
	require.ErrorIs(t, err, ErrNonceMismatch)
	require.NoError(t, s.Apply(NewEvent(t0, CreatedTransaction{WithdrawalID: 1, Transaction: unsigned(req, 3)})))
	assert.Equal(t, uint64(4), s.NextNonce())
	require.NoError(t, s.CheckInvariants())
	assert.Equal(t, s, s.Clone())
}

func TestInitializedRejectedAfterRequests(t *testing.T) {
	s := NewEthTransactions()
	require.NoError(t, s.Apply(NewEvent(t0, AcceptedWithdrawalRequest{Request: request(1, 1_000_000)})))
	assert.False(t, s.Fresh())
	err := s.Apply(NewEvent(t0, Initialized{NextTransactionNonce: 3}))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, s.NextNonce())
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"minter-core/internal/ledger"
	"minter-core/internal/state"
	"minter-core/pkg/wallet/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyLedger struct {
	*ledger.MemoryLedger
	mu    sync.Mutex
	err   error
	calls []ledger.TransferArgs
}

func (l *flakyLedger) Transfer(ctx context.Context, args ledger.TransferArgs) (uint64, error) {
	l.mu.Lock()
	l.calls = append(l.calls, args)
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return l.MemoryLedger.Transfer(ctx, args)
}

// failedWithdrawal finalizes withdrawal id with a failed receipt.
func failedWithdrawal(t *testing.T, h *harness, id state.BurnIndex) types.Wei {
	t.Helper()
	tx := h.sendDirect(id)
	receipt := h.chain.mine(tx.Hash, types.TransactionStatusFailure)
	_, err := h.store.AppendAndApply(context.Background(), state.FinalizedTransaction{WithdrawalID: id, TxHash: tx.Hash, Receipt: receipt})
	require.NoError(t, err)
	fee, _ := receipt.EffectiveTransactionFee()
	amount, _ := ether(1).CheckedSub(fee)
	return amount
}

func TestProcessReimbursements(t *testing.T) {
	h := newHarness(t)
	amount := failedWithdrawal(t, h, 1)
	failedWithdrawal(t, h, 2)

	l := &flakyLedger{MemoryLedger: ledger.NewMemoryLedger(), err: errors.New("ledger unavailable")}
	svc := NewReimbursementService(h.store, l, NewLocalGuard(), 10)
	svc.logger = zap.NewNop()

	err := svc.ProcessReimbursements(context.Background())
	require.ErrorIs(t, err, ErrReimbursementIncomplete)
	assert.Equal(t, state.ReimbursementQueued, h.status(1).Reimbursement)
	assert.Len(t, l.calls, 2)

	l.err = nil
	require.NoError(t, svc.ProcessReimbursements(context.Background()))
	st := h.status(1)
	assert.Equal(t, state.ReimbursementReimbursed, st.Reimbursement)
	require.NotNil(t, st.ReimbursedInBlock)
	assert.Equal(t, uint64(1), *st.ReimbursedInBlock)
	assert.Equal(t, state.ReimbursementReimbursed, h.status(2).Reimbursement)

	assert.Equal(t, "reimburse:1", l.calls[2].Memo)
	assert.Equal(t, "alice", l.calls[2].To)
	assert.Equal(t, "savings", l.calls[2].Subaccount)
	balance, _ := amount.CheckedAdd(amount)
	assert.Equal(t, balance, l.Balance("alice", "savings"))

	// the queue is empty, nothing is paid twice
	require.NoError(t, svc.ProcessReimbursements(context.Background()))
	assert.Len(t, l.calls, 4)
}

func TestProcessReimbursementsRespectsBatchAndGuard(t *testing.T) {
	h := newHarness(t)
	failedWithdrawal(t, h, 1)
	failedWithdrawal(t, h, 2)

	l := &flakyLedger{MemoryLedger: ledger.NewMemoryLedger()}
	guard := NewLocalGuard()
	svc := NewReimbursementService(h.store, l, guard, 1)
	svc.logger = zap.NewNop()

	release, err := guard.Acquire(context.Background(), TaskReimbursement)
	require.NoError(t, err)
	require.ErrorIs(t, svc.ProcessReimbursements(context.Background()), ErrAlreadyProcessing)
	assert.Empty(t, l.calls)
	release()

	require.NoError(t, svc.ProcessReimbursements(context.Background()))
	assert.Equal(t, state.ReimbursementReimbursed, h.status(1).Reimbursement)
	assert.Equal(t, state.ReimbursementQueued, h.status(2).Reimbursement)
}

func TestReimbursementRecordedAfterCrashIsNotPaidTwice(t *testing.T) {
	h := newHarness(t)
	amount := failedWithdrawal(t, h, 1)
	l := ledger.NewMemoryLedger()

	// a transfer that went through before the event could be recorded
	block, err := l.Transfer(context.Background(), ledger.TransferArgs{
		To: "alice", Subaccount: "savings", Amount: amount, Memo: ledger.ReimbursementMemo(1),
	})
	require.NoError(t, err)

	svc := NewReimbursementService(h.store, l, NewLocalGuard(), 10)
	svc.logger = zap.NewNop()
	require.NoError(t, svc.ProcessReimbursements(context.Background()))

	assert.Equal(t, block, *h.status(1).ReimbursedInBlock)
	assert.Equal(t, amount, l.Balance("alice", "savings"))
}

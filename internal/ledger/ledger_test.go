package ledger

import (
	"context"
	"testing"

	"minter-core/pkg/wallet/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerIsIdempotentPerMemo(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	args := TransferArgs{To: "alice", Amount: types.NewWei(500), Memo: ReimbursementMemo(3)}

	first, err := l.Transfer(ctx, args)
	require.NoError(t, err)
	second, err := l.Transfer(ctx, args)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, types.NewWei(500), l.Balance("alice", ""))

	other, err := l.Transfer(ctx, TransferArgs{To: "alice", Amount: types.NewWei(1), Memo: ReimbursementMemo(4)})
	require.NoError(t, err)
	assert.Equal(t, first+1, other)
	assert.Equal(t, types.NewWei(501), l.Balance("alice", ""))
}

func TestTransferValidation(t *testing.T) {
	l := NewMemoryLedger()
	for _, args := range []TransferArgs{
		{Amount: types.NewWei(1), Memo: "m"},
		{To: "bob", Memo: "m"},
		{To: "bob", Amount: types.NewWei(1)},
	} {
		_, err := l.Transfer(context.Background(), args)
		assert.ErrorIs(t, err, ErrInvalidTransfer)
	}
}

func TestReimbursementMemo(t *testing.T) {
	assert.Equal(t, "reimburse:42", ReimbursementMemo(42))
}

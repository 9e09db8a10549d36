package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"minter-core/pkg/wallet/types"
)

var ErrInvalidTransfer = errors.New("invalid ledger transfer")

// TransferArgs credits Amount to the account (To, Subaccount).
// Memo identifies the transfer: a second transfer with the same memo is
// not executed again and returns the block of the first one.
type TransferArgs struct {
	To         string
	Subaccount string
	Amount     types.Wei
	Memo       string
}

func (a TransferArgs) validate() error {
	if a.To == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidTransfer)
	}
	if a.Amount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidTransfer)
	}
	if a.Memo == "" {
		return fmt.Errorf("%w: empty memo", ErrInvalidTransfer)
	}
	return nil
}

// Ledger is the token ledger the minter pays reimbursements from.
type Ledger interface {
	Transfer(ctx context.Context, args TransferArgs) (uint64, error)
}

// ReimbursementMemo is the idempotency key of a withdrawal reimbursement.
func ReimbursementMemo(withdrawalID uint64) string {
	return fmt.Sprintf("reimburse:%d", withdrawalID)
}

type memoryAccount struct {
	owner, subaccount string
}

// MemoryLedger is an in-process Ledger for development and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[memoryAccount]types.Wei
	byMemo   map[string]uint64
	blocks   []TransferArgs
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[memoryAccount]types.Wei),
		byMemo:   make(map[string]uint64),
	}
}

func (l *MemoryLedger) Transfer(_ context.Context, args TransferArgs) (uint64, error) {
	if err := args.validate(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if block, ok := l.byMemo[args.Memo]; ok {
		return block, nil
	}
	acc := memoryAccount{args.To, args.Subaccount}
	balance, ok := l.balances[acc].CheckedAdd(args.Amount)
	if !ok {
		return 0, types.ErrWeiOverflow
	}
	l.balances[acc] = balance
	l.blocks = append(l.blocks, args)
	block := uint64(len(l.blocks))
	l.byMemo[args.Memo] = block
	return block, nil
}

func (l *MemoryLedger) Balance(owner, subaccount string) types.Wei {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[memoryAccount{owner, subaccount}]
}

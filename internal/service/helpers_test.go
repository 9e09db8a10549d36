package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"minter-core/internal/rpc"
	"minter-core/internal/signer"
	"minter-core/internal/state"
	"minter-core/internal/store"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testChainID = 1

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func gwei(n uint64) types.Wei {
	w, _ := types.NewWei(n).CheckedMulUint64(1_000_000_000)
	return w
}

func ether(n uint64) types.Wei {
	w, _ := gwei(n).CheckedMulUint64(1_000_000_000)
	return w
}

// testHistory prices at base 10 gwei, priority 2 gwei: max fee 22 gwei.
func testHistory() types.FeeHistory {
	return types.FeeHistory{
		OldestBlock:   100,
		BaseFeePerGas: []types.Wei{gwei(9), gwei(10)},
		Reward:        [][]types.Wei{{gwei(1)}, {gwei(2)}, {gwei(3)}},
	}
}

func testPrice() types.TransactionPrice {
	return types.TransactionPrice{
		GasLimit:             types.DefaultGasLimit,
		MaxFeePerGas:         gwei(22),
		MaxPriorityFeePerGas: gwei(2),
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeChain answers as the consensus of all providers would.
type fakeChain struct {
	mu sync.Mutex

	history    types.FeeHistory
	historyErr error

	latest    uint64
	latestErr error

	finalized    uint64
	finalizedErr error

	sendResult types.SendRawTransactionResult
	sendErr    error
	sent       []types.SignedTransaction

	receipts     map[common.Hash]types.TransactionReceipt
	receiptErr   error
	receiptCalls int
	historyCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		history:  testHistory(),
		receipts: make(map[common.Hash]types.TransactionReceipt),
	}
}

func (c *fakeChain) FeeHistory(context.Context, rpc.FeeHistoryArgs) (types.FeeHistory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyCalls++
	return c.history, c.historyErr
}

func (c *fakeChain) LatestTransactionCount(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.latestErr
}

func (c *fakeChain) FinalizedTransactionCount(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized, c.finalizedErr
}

func (c *fakeChain) SendRawTransaction(_ context.Context, raw []byte) (types.SendRawTransactionResult, error) {
	tx, err := types.DecodeSignedTransaction(raw)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	c.sent = append(c.sent, tx)
	return c.sendResult, nil
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (types.MaybeReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptCalls++
	if c.receiptErr != nil {
		return types.MaybeReceipt{}, c.receiptErr
	}
	r, ok := c.receipts[hash]
	return types.MaybeReceipt{Found: ok, Receipt: r}, nil
}

func (c *fakeChain) set(fn func(c *fakeChain)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func (c *fakeChain) mine(hash common.Hash, status types.TransactionStatus) types.TransactionReceipt {
	r := types.TransactionReceipt{
		BlockHash:         common.BigToHash(big.NewInt(77)),
		BlockNumber:       77,
		EffectiveGasPrice: gwei(15),
		GasUsed:           types.DefaultGasLimit,
		Status:            status,
		TransactionHash:   hash,
	}
	c.set(func(c *fakeChain) { c.receipts[hash] = r })
	return r
}

// flakySigner fails for the nonces in fail.
type flakySigner struct {
	signer.Signer
	mu   sync.Mutex
	fail map[uint64]bool
}

func (s *flakySigner) Sign(ctx context.Context, tx types.Transaction) (types.SignedTransaction, error) {
	s.mu.Lock()
	failing := s.fail[tx.Nonce]
	s.mu.Unlock()
	if failing {
		return types.SignedTransaction{}, context.DeadlineExceeded
	}
	return s.Signer.Sign(ctx, tx)
}

type harness struct {
	t      *testing.T
	clock  *testClock
	chain  *fakeChain
	signer *flakySigner
	store  *store.EventStore
	svc    *WithdrawalService

	retries []time.Duration
}

func newHarness(t *testing.T, tune ...func(*Config)) *harness {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	h := &harness{
		t:      t,
		clock:  &testClock{now: t0},
		chain:  newFakeChain(),
		signer: &flakySigner{Signer: signer.NewLocalSigner(key, testChainID), fail: map[uint64]bool{}},
	}
	h.store, err = store.Open(context.Background(), store.NewMemoryLog(), store.WithClock(h.clock.Now), store.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	cfg := DefaultConfig(testChainID)
	for _, fn := range tune {
		fn(&cfg)
	}
	h.svc, err = NewWithdrawalService(cfg, h.store, h.chain, h.signer, WithClock(h.clock.Now), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	h.svc.SetRetryHook(func(d time.Duration) { h.retries = append(h.retries, d) })
	return h
}

func (h *harness) request(id state.BurnIndex, amount types.Wei) state.WithdrawalRequest {
	return state.WithdrawalRequest{
		ID:          id,
		Destination: common.BigToAddress(big.NewInt(int64(0xb0 + id))),
		Amount:      amount,
		Owner:       "alice",
		Subaccount:  "savings",
		CreatedAt:   t0,
	}
}

func (h *harness) accept(id state.BurnIndex, amount types.Wei) {
	h.t.Helper()
	_, err := h.store.AppendAndApply(context.Background(), state.AcceptedWithdrawalRequest{Request: h.request(id, amount)})
	require.NoError(h.t, err)
}

// sendDirect takes a withdrawal of 1 ether from acceptance to sent
// without going through a round, at the next free nonce.
func (h *harness) sendDirect(id state.BurnIndex) types.SignedTransaction {
	h.t.Helper()
	ctx := context.Background()
	h.accept(id, ether(1))

	var nonce uint64
	h.store.Read(func(st *state.EthTransactions) { nonce = st.NextNonce() })
	tx, err := CreateTransaction(h.request(id, ether(1)), nonce, testPrice(), testChainID)
	require.NoError(h.t, err)
	_, err = h.store.AppendAndApply(ctx, state.CreatedTransaction{WithdrawalID: id, Transaction: tx})
	require.NoError(h.t, err)

	signed, err := h.signer.Sign(ctx, tx)
	require.NoError(h.t, err)
	_, err = h.store.AppendAndApply(ctx, state.SignedTransaction{WithdrawalID: id, Transaction: signed})
	require.NoError(h.t, err)
	_, err = h.store.AppendAndApply(ctx, state.SentTransaction{WithdrawalID: id, TxHash: signed.Hash})
	require.NoError(h.t, err)
	return signed
}

// replaceDirect records a replacement of the live transaction of id with a
// fee raised by 10%.
func (h *harness) replaceDirect(id state.BurnIndex, live types.SignedTransaction) types.SignedTransaction {
	h.t.Helper()
	price, err := BumpPrice(live.Transaction.Price(), live.Transaction.Price(), 10)
	require.NoError(h.t, err)
	tx, err := CreateTransaction(h.request(id, ether(1)), live.Transaction.Nonce, price, testChainID)
	require.NoError(h.t, err)
	signed, err := h.signer.Sign(context.Background(), tx)
	require.NoError(h.t, err)
	_, err = h.store.AppendAndApply(context.Background(), state.ReplacedTransaction{WithdrawalID: id, Transaction: signed})
	require.NoError(h.t, err)
	return signed
}

func (h *harness) round() error {
	return h.svc.ProcessRetrieveEthRequests(context.Background())
}

func (h *harness) status(id state.BurnIndex) state.WithdrawalStatus {
	return h.svc.Status(id)
}

func (h *harness) pendingIDs() []state.BurnIndex {
	var ids []state.BurnIndex
	h.store.Read(func(st *state.EthTransactions) {
		for _, r := range st.PendingRequests(1 << 10) {
			ids = append(ids, r.ID)
		}
	})
	return ids
}

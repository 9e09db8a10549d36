package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"minter-core/internal/signer"
	"minter-core/internal/state"
	"minter-core/pkg/config"
	"minter-core/pkg/logger"
	"minter-core/pkg/monitor"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Config tunes the withdrawal pipeline. Batch sizes bound the work of one stage per round.
type Config struct {
	ChainID            uint64
	CreateBatchSize    int
	SignBatchSize      int
	SendBatchSize      int
	ResubmitBatchSize  int
	FinalizeBatchSize  int
	ReimburseBatchSize int
	RetryInterval      time.Duration
	Stuck              StuckPolicy
	FeeBumpPercent     uint64
	// SendWindow lets signed transactions with nonce < latest + SendWindow be broadcast.
	SendWindow         uint64
	ReceiptCacheSize   int
}

func DefaultConfig(chainID uint64) Config {
	return Config{
		ChainID:            chainID,
		CreateBatchSize:    5,
		SignBatchSize:      5,
		SendBatchSize:      5,
		ResubmitBatchSize:  5,
		FinalizeBatchSize:  5,
		ReimburseBatchSize: 5,
		RetryInterval:      30 * time.Second,
		Stuck:              StuckPolicy{Rule: StuckUnmined, MinAge: 5 * time.Minute},
		FeeBumpPercent:     10,
		SendWindow:         1,
		ReceiptCacheSize:   1024,
	}
}

// ConfigFrom maps the pipeline section of the service configuration.
func ConfigFrom(chainID uint64, p config.PipelineConfig) (Config, error) {
	rule, err := ParseStuckRule(p.StuckRule)
	if err != nil {
		return Config{}, fmt.Errorf("pipeline.stuck_rule: %w", err)
	}
	return Config{
		ChainID:            chainID,
		CreateBatchSize:    p.CreateBatchSize,
		SignBatchSize:      p.SignBatchSize,
		SendBatchSize:      p.SendBatchSize,
		ResubmitBatchSize:  p.ResubmitBatchSize,
		FinalizeBatchSize:  p.FinalizeBatchSize,
		ReimburseBatchSize: p.ReimburseBatch,
		RetryInterval:      p.RetryInterval,
		Stuck:              StuckPolicy{Rule: rule, MinAge: p.StuckMinAge},
		FeeBumpPercent:     p.FeeBumpPercent,
		SendWindow:         p.SendWindow,
		ReceiptCacheSize:   p.ReceiptCacheSize,
	}, nil
}

// WithdrawalService runs the withdrawal pipeline rounds:
// resubmit, create, sign, send, finalize.
type WithdrawalService struct {
	cfg      Config
	events   EventLog
	chain    ChainClient
	signer   signer.Signer
	guard    Guard
	now      func() time.Time
	receipts *lru.Cache[common.Hash, types.TransactionReceipt]
	logger   *zap.Logger

	mu    sync.Mutex
	retry func(delay time.Duration)
}

type WithdrawalOption func(*WithdrawalService)

func WithGuard(g Guard) WithdrawalOption {
	return func(s *WithdrawalService) { s.guard = g }
}

func WithClock(now func() time.Time) WithdrawalOption {
	return func(s *WithdrawalService) { s.now = now }
}

func WithLogger(l *zap.Logger) WithdrawalOption {
	return func(s *WithdrawalService) { s.logger = l }
}

func NewWithdrawalService(cfg Config, events EventLog, chain ChainClient, sgn signer.Signer, opts ...WithdrawalOption) (*WithdrawalService, error) {
	size := cfg.ReceiptCacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[common.Hash, types.TransactionReceipt](size)
	if err != nil {
		return nil, fmt.Errorf("receipt cache: %w", err)
	}
	s := &WithdrawalService{
		cfg:      cfg,
		events:   events,
		chain:    chain,
		signer:   sgn,
		guard:    NewLocalGuard(),
		now:      time.Now,
		receipts: cache,
		logger:   logger.Named("withdraw"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetRetryHook installs the callback used to schedule another round while
// requests are still pending.
func (s *WithdrawalService) SetRetryHook(fn func(delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = fn
}

func (s *WithdrawalService) Address() common.Address { return s.signer.Address() }

// ProcessRetrieveEthRequests runs one pipeline round. It returns
// ErrAlreadyProcessing when another round holds the guard, and the cause
// when a stage aborted the round.
func (s *WithdrawalService) ProcessRetrieveEthRequests(ctx context.Context) error {
	release, err := s.guard.Acquire(ctx, TaskRetrieveEth)
	if err != nil {
		s.logger.Debug("failed retrieving timer guard to process withdrawals", zap.Error(err))
		monitor.ObserveRound(string(TaskRetrieveEth), "skipped")
		return err
	}
	defer release()

	err = s.round(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "aborted"
	}
	monitor.ObserveRound(string(TaskRetrieveEth), outcome)

	var pending bool
	s.events.Read(func(st *state.EthTransactions) {
		pending = st.HasPending()
		monitor.SetCollectionSizes(st.Counts())
	})
	if pending {
		s.mu.Lock()
		retry := s.retry
		s.mu.Unlock()
		if retry != nil {
			retry(s.cfg.RetryInterval)
		}
	}
	return err
}

func (s *WithdrawalService) round(ctx context.Context) error {
	var idle bool
	s.events.Read(func(st *state.EthTransactions) { idle = st.NothingToProcess() })
	if idle {
		return nil
	}

	history, err := s.chain.FeeHistory(ctx, FeeHistoryArgs())
	if err != nil {
		s.logger.Info("failed retrieving fee history to process withdrawals", zap.Error(err))
		return fmt.Errorf("fee history: %w", err)
	}
	price, err := EstimateTransactionPrice(history)
	if err != nil {
		return fmt.Errorf("estimate transaction price: %w", err)
	}
	maxFee, _ := price.MaxTransactionFee()
	s.logger.Info("estimated max transaction fee", zap.Stringer("max_fee", maxFee))

	latest, err := s.chain.LatestTransactionCount(ctx, s.signer.Address())
	if err != nil {
		s.logger.Info("failed to get the latest transaction count", zap.Error(err))
		return fmt.Errorf("latest transaction count: %w", err)
	}

	s.timed("resubmit", func() { s.resubmitTransactions(ctx, latest, price) })
	s.timed("create", func() { s.createTransactions(ctx, price) })
	s.timed("sign", func() { s.signTransactions(ctx) })
	s.timed("send", func() { s.sendTransactions(ctx, latest) })

	var finalizeErr error
	s.timed("finalize", func() { finalizeErr = s.finalizeTransactions(ctx) })
	return finalizeErr
}

func (s *WithdrawalService) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	monitor.ObserveStage(stage, time.Since(start).Seconds())
}

// Status is the read view of one withdrawal.
func (s *WithdrawalService) Status(id state.BurnIndex) state.WithdrawalStatus {
	var st state.WithdrawalStatus
	s.events.Read(func(txs *state.EthTransactions) { st = txs.Status(id) })
	return st
}

// Summary describes the minter as a whole.
type Summary struct {
	Address     common.Address `json:"address"`
	ChainID     uint64         `json:"chain_id"`
	NextNonce   uint64         `json:"next_nonce"`
	Collections map[string]int `json:"collections"`
}

func (s *WithdrawalService) Summary() Summary {
	sum := Summary{Address: s.signer.Address(), ChainID: s.cfg.ChainID}
	s.events.Read(func(st *state.EthTransactions) {
		sum.NextNonce = st.NextNonce()
		sum.Collections = st.Counts()
	})
	return sum
}

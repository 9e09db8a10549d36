package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"minter-core/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler 定时 (cron) 及按需触发流水线任务。
// 防重入由各 service 的 guard 负责
type Scheduler struct {
	cron           *cron.Cron
	withdrawals    *WithdrawalService
	reimbursements *ReimbursementService
	retrieveSpec   string
	reimburseSpec  string
	logger         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	retry *time.Timer
}

// NewScheduler 创建调度器，并把 withdraw 的重试钩子指向自己
func NewScheduler(w *WithdrawalService, r *ReimbursementService, retrieveSpec, reimburseSpec string) *Scheduler {
	s := &Scheduler{
		cron:           cron.New(),
		withdrawals:    w,
		reimbursements: r,
		retrieveSpec:   retrieveSpec,
		reimburseSpec:  reimburseSpec,
		logger:         logger.Named("scheduler"),
	}
	w.SetRetryHook(s.scheduleRetry)
	return s
}

// Start 注册任务并启动 cron
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.retrieveSpec, s.runRetrieve); err != nil {
		return fmt.Errorf("retrieve schedule %q: %w", s.retrieveSpec, err)
	}
	if _, err := s.cron.AddFunc(s.reimburseSpec, s.runReimburse); err != nil {
		return fmt.Errorf("reimburse schedule %q: %w", s.reimburseSpec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("retrieve", s.retrieveSpec), zap.String("reimburse", s.reimburseSpec))
	return nil
}

// Stop 停止调度，并等待正在执行的任务返回
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.mu.Lock()
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// TriggerRetrieve 立即异步触发一轮提现处理
func (s *Scheduler) TriggerRetrieve() {
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runRetrieve()
	}()
}

// scheduleRetry 只保留一个重试定时器，已存在时忽略
func (s *Scheduler) scheduleRetry(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retry != nil || s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	s.retry = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.retry = nil
		s.mu.Unlock()
		s.TriggerRetrieve()
	})
}

func (s *Scheduler) runRetrieve() {
	err := s.withdrawals.ProcessRetrieveEthRequests(s.ctx)
	if err != nil && !errors.Is(err, ErrAlreadyProcessing) {
		s.logger.Info("withdrawal round aborted", zap.Error(err))
	}
}

func (s *Scheduler) runReimburse() {
	err := s.reimbursements.ProcessReimbursements(s.ctx)
	if err != nil && !errors.Is(err, ErrAlreadyProcessing) {
		s.logger.Info("reimbursement run incomplete", zap.Error(err))
	}
}

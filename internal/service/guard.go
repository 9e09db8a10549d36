package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"minter-core/pkg/utils/lock"

	"go.uber.org/zap"
)

// TaskType names a kind of scheduled work. At most one round of a task
// type runs at a time.
type TaskType string

const (
	TaskRetrieveEth   TaskType = "retrieve_eth"
	TaskReimbursement TaskType = "reimbursement"
)

var ErrAlreadyProcessing = errors.New("task is already being processed")

// Guard hands out the right to run one round of a task. A held task is
// rejected immediately with ErrAlreadyProcessing, never queued.
type Guard interface {
	Acquire(ctx context.Context, task TaskType) (release func(), err error)
}

// LocalGuard serializes rounds inside one process.
type LocalGuard struct {
	mu      sync.Mutex
	running map[TaskType]bool
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{running: make(map[TaskType]bool)}
}

func (g *LocalGuard) Acquire(_ context.Context, task TaskType) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[task] {
		return nil, fmt.Errorf("%s: %w", task, ErrAlreadyProcessing)
	}
	g.running[task] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, task)
			g.mu.Unlock()
		})
	}, nil
}

// RedisGuard serializes rounds across replicas sharing one Redis.
// The lease expires after ttl if the holder dies.
type RedisGuard struct {
	lock   lock.DistributedLock
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisGuard(l lock.DistributedLock, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{lock: l, ttl: ttl, logger: logger}
}

func (g *RedisGuard) Acquire(ctx context.Context, task TaskType) (func(), error) {
	key := "minter:guard:" + string(task)
	token, ok, err := g.lock.Acquire(ctx, key, g.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", task, ErrAlreadyProcessing)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the round may have been cancelled; release regardless
			if err := g.lock.Release(context.WithoutCancel(ctx), key, token); err != nil {
				g.logger.Warn("guard release failed", zap.String("task", string(task)), zap.Error(err))
			}
		})
	}, nil
}

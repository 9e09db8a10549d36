package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"minter-core/internal/event"
	"minter-core/internal/service/mq"
	"minter-core/internal/state"
	"minter-core/pkg/logger"
	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var ErrInvalidRequest = errors.New("invalid withdrawal request")

// IntakeService records burned withdrawals as AcceptedWithdrawalRequest events.
type IntakeService struct {
	events EventLog
	now    func() time.Time
	logger *zap.Logger

	mu         sync.Mutex
	onAccepted func()
}

func NewIntakeService(events EventLog) *IntakeService {
	return &IntakeService{
		events: events,
		now:    time.Now,
		logger: logger.Named("intake"),
	}
}

// OnAccepted registers a callback run after every accepted request,
// typically Scheduler.TriggerRetrieve.
func (s *IntakeService) OnAccepted(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAccepted = fn
}

// Accept validates req and appends it to the pending queue.
// A reused id fails with state.ErrDuplicateWithdrawal.
func (s *IntakeService) Accept(ctx context.Context, req state.WithdrawalRequest) error {
	if req.ID == 0 {
		return fmt.Errorf("%w: withdrawal id must be positive", ErrInvalidRequest)
	}
	if req.Amount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidRequest)
	}
	if req.Destination == (common.Address{}) {
		return fmt.Errorf("%w: zero destination", ErrInvalidRequest)
	}
	if req.Owner == "" {
		return fmt.Errorf("%w: empty owner", ErrInvalidRequest)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	req.CreatedAt = req.CreatedAt.UTC()

	if _, err := s.events.AppendAndApply(ctx, state.AcceptedWithdrawalRequest{Request: req}); err != nil {
		return err
	}
	s.logger.Info("accepted withdrawal request",
		zap.Uint64("withdrawal_id", uint64(req.ID)),
		zap.Stringer("destination", req.Destination),
		zap.Stringer("amount", req.Amount))

	s.mu.Lock()
	fn := s.onAccepted
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// ParseWithdrawalRequested converts an intake message into a request.
func ParseWithdrawalRequested(msg event.WithdrawalRequested) (state.WithdrawalRequest, error) {
	if !common.IsHexAddress(msg.Destination) {
		return state.WithdrawalRequest{}, fmt.Errorf("%w: destination %q", ErrInvalidRequest, msg.Destination)
	}
	amount, err := types.ParseWei(msg.Amount)
	if err != nil {
		return state.WithdrawalRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return state.WithdrawalRequest{
		ID:          state.BurnIndex(msg.WithdrawalID),
		Destination: common.HexToAddress(msg.Destination),
		Amount:      amount,
		Owner:       msg.Owner,
		Subaccount:  msg.Subaccount,
		CreatedAt:   msg.CreatedAt,
	}, nil
}

// HandleMessage is the mq.Handler of the intake topic. Malformed and
// duplicate messages are acknowledged; only store failures are redelivered.
func (s *IntakeService) HandleMessage(ctx context.Context, msg *mq.Message) error {
	log := s.logger.With(zap.String("message_id", msg.ID), zap.String("topic", msg.Topic))

	var payload event.WithdrawalRequested
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Error("dropping undecodable withdrawal message", zap.Error(err))
		return nil
	}
	req, err := ParseWithdrawalRequested(payload)
	if err == nil {
		err = s.Accept(ctx, req)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrDuplicateWithdrawal):
		log.Info("withdrawal already accepted", zap.Uint64("withdrawal_id", payload.WithdrawalID))
		return nil
	case errors.Is(err, ErrInvalidRequest):
		log.Error("dropping invalid withdrawal message", zap.Uint64("withdrawal_id", payload.WithdrawalID), zap.Error(err))
		return nil
	default:
		return err
	}
}

// Run consumes the intake topic until ctx is done.
func (s *IntakeService) Run(ctx context.Context, consumer mq.Consumer, topic string) error {
	s.logger.Info("consuming withdrawal requests", zap.String("topic", topic))
	return consumer.Subscribe(ctx, topic, s.HandleMessage)
}

package mq

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

var (
	redeliveryDelay    = 500 * time.Millisecond
	redeliveryMaxDelay = 30 * time.Second
)

// handleUntilDone 对同一条消息退避重试 handler 直到成功。
// 未确认的消息不能被跳过，唯一的退出方式是 ctx 结束，此时返回 ctx.Err()。
func handleUntilDone(ctx context.Context, log *zap.Logger, msg *Message, handler Handler) error {
	err := retry.Do(
		func() error { return handler(ctx, msg) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(redeliveryDelay),
		retry.MaxDelay(redeliveryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("handler failed, redelivering",
				zap.String("id", msg.ID), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

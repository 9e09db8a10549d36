package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"minter-core/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisProducer 基于 Redis Streams 实现 Producer 接口
type RedisProducer struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisProducer 创建 Redis 生产者
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, log: logger.Named("mq.redis")}
}

// Publish 发送消息到 Redis Stream (XADD, Stream Name = topic)
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		p.log.Warn("publish failed", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// Close 空操作，client 由创建方关闭
func (p *RedisProducer) Close() error { return nil }

// RedisConsumer 基于 Redis 消费组实现 Consumer 接口
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
	log    *zap.Logger
}

// NewRedisConsumer 创建 Redis 消费者
func NewRedisConsumer(client *redis.Client, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
		log:    logger.Named("mq.redis"),
	}
}

// Subscribe 订阅 Redis Stream，阻塞直到 ctx 结束。
// 启动时先从 "0" 读取本消费者已投递未 ACK 的消息 (PEL)，读完后切换到 ">" 读取新消息。
func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler Handler) error {
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	c.log.Info("subscribed", zap.String("topic", topic), zap.String("group", c.group))

	cursor := "0"
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, cursor},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		n := 0
		for _, stream := range streams {
			for _, x := range stream.Messages {
				n++
				if cursor != ">" {
					cursor = x.ID
				}
				if err := c.deliver(ctx, topic, x, handler); err != nil {
					return nil
				}
			}
		}
		if n == 0 && cursor != ">" {
			c.log.Info("pending entries drained", zap.String("topic", topic))
			cursor = ">"
		}
	}
}

func (c *RedisConsumer) deliver(ctx context.Context, topic string, x redis.XMessage, handler Handler) error {
	payload, ok := x.Values["payload"].(string)
	if !ok {
		// PEL 中已被裁剪的消息也是这种形态
		c.log.Warn("dropping message without payload", zap.String("id", x.ID))
		c.ack(ctx, topic, x.ID)
		return nil
	}
	key, _ := x.Values["key"].(string)

	msg := &Message{ID: x.ID, Topic: topic, Key: key, Payload: []byte(payload)}
	if err := handleUntilDone(ctx, c.log, msg, handler); err != nil {
		return err
	}
	c.ack(ctx, topic, x.ID)
	return nil
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		c.log.Warn("ack failed", zap.String("id", id), zap.Error(err))
	}
}

// Close 空操作，client 由创建方关闭
func (c *RedisConsumer) Close() error { return nil }

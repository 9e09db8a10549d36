package mq

import "context"

// Message 通用消息结构，与具体 MQ 无关
type Message struct {
	ID       string            // 消息 ID (Redis stream id 或 Kafka partition/offset)
	Topic    string
	Key      string            // 分区键，minter 消息为 withdrawal id
	Payload  []byte            // JSON
	Metadata map[string]string
}

// Handler 处理单条消息。返回 error 时消息不会被确认，消费者原地重试
type Handler func(ctx context.Context, msg *Message) error

type Producer interface {
	// Publish 发送消息到 topic，相同 key 的消息保持顺序
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}

type Consumer interface {
	// Subscribe 订阅 topic，把消息交给 handler 直到 ctx 结束
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minter-core/pkg/safe_random"

	"github.com/redis/go-redis/v9"
)

var ErrNotOwner = errors.New("lock is held by another owner")

// DistributedLock 定义分布式锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁 (只尝试一次)
	// key: 锁的唯一标识
	// ttl: 锁的过期时间
	// 返回: (token, 是否成功, error)，token 释放时需要传回
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release 释放锁，只有持有 token 的一方能释放
	Release(ctx context.Context, key string, token string) error
}

// releaseScript Lua 脚本检查 Value 是否属于自己再删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 Redis SET NX PX 的实现
type RedisLock struct {
	client *redis.Client
	prefix string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, prefix: "lock:"}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token, err := safe_random.GenerateRandomHexString(16)
	if err != nil {
		return "", false, err
	}
	acquired, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLock) Release(ctx context.Context, key string, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("release %s: %w", key, ErrNotOwner)
	}
	return nil
}

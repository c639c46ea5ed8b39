package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotAcquired 锁已被其他实例持有
var ErrNotAcquired = errors.New("lock held by another instance")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ErrLost 锁已过期或被其他实例取得
var ErrLost = errors.New("lock no longer held")

// Locker 基于 SETNX 的分布式互斥锁
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock 已持有的锁
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire 尝试获取锁，不阻塞；ttl 到期后锁自动释放
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release 仅当锁仍属于自己时删除
func (k *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Err()
}

// Extend 续期，锁已不属于自己时返回 ErrLost
func (k *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, k.client, []string{k.key}, k.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

// KeepAlive 每隔 ttl/3 续期一次，直到 ctx 结束；续期失败时调用 onLost 并退出
func (k *Lock) KeepAlive(ctx context.Context, ttl time.Duration, onLost func(error)) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.Extend(ctx, ttl); err != nil {
				if ctx.Err() != nil {
					return
				}
				if onLost != nil {
					onLost(err)
				}
				return
			}
		}
	}
}

package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockFailed lock acquisition failed
	ErrLockFailed = errors.New("failed to acquire lock")
)

// RedisLock distributed lock based on Redis. Used to keep a single
// scheduler instance scanning at a time across process restarts.
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// NewRedisLock creates a Redis lock with a random holder token
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	token := make([]byte, 16)
	rand.Read(token)

	return &RedisLock{
		client: client,
		key:    key,
		value:  hex.EncodeToString(token),
		ttl:    ttl,
	}
}

// Lock acquires the lock, failing immediately when held elsewhere
func (l *RedisLock) Lock(ctx context.Context) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return err
	}

	if !success {
		return ErrLockFailed
	}

	return nil
}

// Unlock releases the lock only if this instance still holds it
func (l *RedisLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	return l.client.Eval(ctx, script, []string{l.key}, l.value).Err()
}

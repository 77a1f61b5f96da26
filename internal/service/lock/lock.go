// Package lock guards workflow launches against overlapping executions.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Locker hands out named, expiring leases.
type Locker interface {
	// Acquire returns a lease token and true when name was free.
	Acquire(ctx context.Context, name string) (string, bool, error)
	// Release frees name if token still owns it.
	Release(ctx context.Context, name, token string) error
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker coordinates leases across processes using Redis keys.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire attempts to take the lease.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, Key(l.prefix, name), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock acquire: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees a previously acquired lease.
func (l *RedisLocker) Release(ctx context.Context, name, token string) error {
	if token == "" {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.client, []string{Key(l.prefix, name)}, token).Int(); err != nil {
		return fmt.Errorf("lock release: %w", err)
	}
	return nil
}

// Key renders the storage key for a lease name.
func Key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

// LocalLocker keeps leases in process memory.
type LocalLocker struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	leases map[string]localLease
}

type localLease struct {
	token   string
	expires time.Time
}

// NewLocalLocker constructs an in-process locker.
func NewLocalLocker(ttl time.Duration) *LocalLocker {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &LocalLocker{ttl: ttl, now: time.Now, leases: make(map[string]localLease)}
}

// Acquire attempts to take the lease.
func (l *LocalLocker) Acquire(_ context.Context, name string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.leases[name]; ok && now.Before(lease.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[name] = localLease{token: token, expires: now.Add(l.ttl)}
	return token, true, nil
}

// Release frees name if token still owns it.
func (l *LocalLocker) Release(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lease, ok := l.leases[name]; ok && lease.token == token {
		delete(l.leases, name)
	}
	return nil
}

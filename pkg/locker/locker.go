package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("resource lock not acquired")

// Locker guards the check-then-write critical section for a single resource.
// Two concurrent bookings for the same resource must serialize through it so
// that overlapping slots can never both pass the availability check.
type Locker interface {
	WithResourceLock(ctx context.Context, resourceID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisResourceLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResourceLocker creates a locker that uses a per-resource Redis key.
func NewRedisResourceLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisResourceLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisResourceLocker) WithResourceLock(ctx context.Context, resourceID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:resource:%s", resourceID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire resource lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisResourceLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release resource lock: %w", err)
	}
	return nil
}

type localResourceLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewLocalResourceLocker creates a process-local locker for single-node
// deployments and tests. Unlike the Redis locker it blocks instead of failing
// when the lock is held.
func NewLocalResourceLocker() Locker {
	return &localResourceLocker{
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (l *localResourceLocker) WithResourceLock(ctx context.Context, resourceID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[resourceID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[resourceID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

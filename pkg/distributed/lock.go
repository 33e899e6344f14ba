package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockTimeout = errors.New("lock acquisition timeout")
	ErrLockNotHeld = errors.New("lock was not held by this instance")
)

const lockPollInterval = 50 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a Redis mutex held by one process at a time. The key expires after
// ttl unless the holder keeps renewing it, so a crashed holder cannot wedge
// other instances.
type Lock struct {
	client redis.UniversalClient
	key    string
	value  string
	ttl    time.Duration

	mu        sync.Mutex
	stopRenew context.CancelFunc
	renewDone chan struct{}
}

func NewLock(client redis.UniversalClient, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryLock attempts to acquire the lock without blocking.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock %s: %w", l.key, err)
	}
	if acquired {
		l.startRenewal()
	}
	return acquired, nil
}

// LockWithTimeout polls until the lock is acquired, timeout elapses or ctx
// is done.
func (l *Lock) LockWithTimeout(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.TryLock(ctx)
		if err != nil && ctx.Err() == nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrLockTimeout, l.key)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock if this holder still owns it.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if l.stopRenew != nil {
		l.stopRenew()
		<-l.renewDone
		l.stopRenew = nil
	}
	l.mu.Unlock()

	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if released == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *Lock) startRenewal() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	l.stopRenew = cancel
	l.renewDone = done
	l.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int()
				if err != nil || renewed == 0 {
					return
				}
			}
		}
	}()
}

package provisioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes check-then-create for one channel key. unlock is safe
// to call more than once and reports a release that did not happen.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func() error, err error)
}

// ErrLeaseLost means the lease expired before it was released and may now
// belong to another process.
var ErrLeaseLost = errors.New("lease expired before release")

// LocalLocker is a process-local keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func() error, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() error {
		once.Do(func() { l.release(key, s, true) })
		return nil
	}, nil
}

func (l *LocalLocker) release(key string, s *slot, held bool) {
	if held {
		<-s.ch
	}
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLocker holds a SET NX PX lease per key so several worker processes
// never run check-then-create for the same channel at once. A lease that
// outlives its holder expires after ttl.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	poll   time.Duration

	newToken func() string
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client:   client,
		prefix:   "intake:channel-lock:",
		ttl:      ttl,
		poll:     50 * time.Millisecond,
		newToken: uuid.NewString,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func() error, error) {
	redisKey := l.prefix + key
	token := l.newToken()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(l.poll):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var (
		once       sync.Once
		releaseErr error
	)
	return func() error {
		once.Do(func() { releaseErr = l.release(redisKey, token) })
		return releaseErr
	}, nil
}

func (l *RedisLocker) release(redisKey, token string) error {
	// The caller's context may already be done; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	deleted, err := l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", redisKey, err)
	}
	if deleted == 0 {
		return fmt.Errorf("lock %s: %w", redisKey, ErrLeaseLost)
	}
	return nil
}

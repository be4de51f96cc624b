package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a ticket lock stays busy past the wait budget.
var ErrLockTimeout = errors.New("ticket lock wait timed out")

const lockRetryInterval = 25 * time.Millisecond

// TicketLocker serializes mutations of the same tickets across concurrent operations.
// Locks are acquired in sorted order; release frees all of them.
type TicketLocker interface {
	Acquire(ctx context.Context, tenantID string, ticketIDs ...string) (release func(), err error)
}

func lockKeys(prefix, tenantID string, ticketIDs []string) []string {
	seen := make(map[string]struct{}, len(ticketIDs))
	keys := make([]string, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, fmt.Sprintf("%s%s:%s", prefix, tenantID, id))
	}
	sort.Strings(keys)
	return keys
}

func waitDeadline(ctx context.Context, wait time.Duration) time.Time {
	deadline := time.Now().Add(wait)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTicketLocker holds per-ticket locks in Redis so several service instances can share them.
type RedisTicketLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisTicketLocker builds a locker whose keys expire after ttl if the holder dies.
func NewRedisTicketLocker(client redis.UniversalClient, ttl, wait time.Duration, logger *zap.Logger) *RedisTicketLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTicketLocker{client: client, ttl: ttl, wait: wait, logger: logger}
}

func (l *RedisTicketLocker) Acquire(ctx context.Context, tenantID string, ticketIDs ...string) (func(), error) {
	token := uuid.NewString()
	keys := lockKeys("ticket-lock:", tenantID, ticketIDs)
	deadline := waitDeadline(ctx, l.wait)

	held := make([]string, 0, len(keys))
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(ctx, l.client, []string{held[i]}, token).Err(); err != nil {
				l.logger.Warn("release ticket lock", zap.String("key", held[i]), zap.Error(err))
			}
		}
	}

	for _, key := range keys {
		if err := l.acquireKey(ctx, key, token, deadline); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *RedisTicketLocker) acquireKey(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// LocalTicketLocker is an in-process TicketLocker for single-instance deployments and tests.
type LocalTicketLocker struct {
	wait time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalTicketLocker returns an empty in-process locker.
func NewLocalTicketLocker(wait time.Duration) *LocalTicketLocker {
	return &LocalTicketLocker{wait: wait, locks: make(map[string]chan struct{})}
}

func (l *LocalTicketLocker) Acquire(ctx context.Context, tenantID string, ticketIDs ...string) (func(), error) {
	keys := lockKeys("", tenantID, ticketIDs)
	deadline := waitDeadline(ctx, l.wait)

	held := make([]string, 0, len(keys))
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, key := range held {
			if ch, ok := l.locks[key]; ok {
				close(ch)
				delete(l.locks, key)
			}
		}
	}

	for _, key := range keys {
		if err := l.acquireKey(ctx, key, deadline); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *LocalTicketLocker) acquireKey(ctx context.Context, key string, deadline time.Time) error {
	for {
		l.mu.Lock()
		busy, taken := l.locks[key]
		if !taken {
			l.locks[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-busy:
			timer.Stop()
		case <-timer.C:
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/labflow/pkg/ports"
)

// Locker implements ports.DistributedLocker within one process.
// Useful for tests and single-node deployments.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	seq   uint64
	now   func() time.Time
	retry time.Duration
}

type lease struct {
	token   uint64
	expires time.Time
}

// NewLocker creates a new in-process locker.
func NewLocker() *Locker {
	return &Locker{
		held:  make(map[string]lease),
		now:   time.Now,
		retry: 5 * time.Millisecond,
	}
}

// Lock blocks until key is free or ctx is done. A lock older than ttl is considered abandoned.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	for {
		if token, ok := l.tryLock(key, ttl); ok {
			return func(context.Context) error {
				l.mu.Lock()
				defer l.mu.Unlock()
				if cur, held := l.held[key]; held && cur.token == token {
					delete(l.held, key)
				}
				return nil
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *Locker) tryLock(key string, ttl time.Duration) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.held[key]; ok && l.now().Before(cur.expires) {
		return 0, false
	}
	l.seq++
	l.held[key] = lease{token: l.seq, expires: l.now().Add(ttl)}
	return l.seq, true
}

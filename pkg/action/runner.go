package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/labflow/internal/logging"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/scope"
)

// DefaultLockTTL bounds how long a distributed lease outlives a crashed replica.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Runner serializes actions per key. Unused local locks are garbage collected by
// reference counting.
type Runner struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the Runner.
type Option func(*Runner)

// WithLocker also takes a distributed lease on the key for every action.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(r *Runner) {
		r.locker = locker
	}
}

// WithLockTTL sets the lease duration of the distributed lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(r *Runner) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger configures a logger for the Runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must Lock entry.mu, then call release(key) after unlocking.
func (r *Runner) acquire(key string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[key]
	if !exists {
		entry = &lockEntry{}
		r.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (r *Runner) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(r.locks, key)
	}
}

// Do runs fn as one logical action of actor on the root entity key. fn receives
// a context carrying a fresh scope, whichever scope ctx held before.
func (r *Runner) Do(ctx context.Context, key, actor string, fn func(context.Context) error) error {
	entry := r.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		r.release(key)
	}()

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, key, r.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The action context may be done by now; the lease must still go.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	sc := scope.New(actor)
	err := fn(scope.WithScope(ctx, sc))
	r.logger.Debug("Action finished", "key", key, "actor", sc.Actor(), "transitions", sc.Len(), "err", err)
	return err
}

// Active returns the number of keys with an action running or waiting.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// KeyOf returns the lock key of a logical action on e: the UID of the root of its
// containment tree, so actions on one Sample and its partitions serialize.
func KeyOf(e domain.Entity) string {
	for e.Parent() != nil {
		e = e.Parent()
	}
	return e.UID()
}

// Package locks serializes all operations for a single owner so at
// most one agent turn is in flight per conversation.
package locks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/cache"
	"go.uber.org/zap"
)

const (
	// DefaultAcquireTimeout is how long a new request waits for the
	// prior one before proceeding anyway.
	DefaultAcquireTimeout = 60 * time.Second

	// maxTrackedOwners bounds the lock table.
	maxTrackedOwners = 10000
)

// OwnerLocks hands out per-owner advisory locks. The acquire timeout is
// advisory, not preemptive: a timed-out holder keeps running, it just
// no longer blocks new work, so two operations can rarely overlap.
type OwnerLocks struct {
	mu      sync.Mutex
	locks   *cache.BoundedMap[uuid.UUID, chan struct{}]
	timeout time.Duration
	logger  *zap.Logger
}

// NewOwnerLocks creates a lock table with the given acquire timeout.
func NewOwnerLocks(timeout time.Duration, logger *zap.Logger) *OwnerLocks {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &OwnerLocks{
		locks:   cache.NewBoundedMap[uuid.UUID, chan struct{}](maxTrackedOwners, 0),
		timeout: timeout,
		logger:  logger,
	}
}

// Acquire waits for the owner's prior operation to finish or time out,
// then claims the lock. The returned release function must be called
// when the operation completes; it is safe to call once from a defer.
func (l *OwnerLocks) Acquire(ctx context.Context, ownerID uuid.UUID) func() {
	for {
		l.mu.Lock()
		ch, held := l.locks.Get(ownerID)
		if !held {
			done := make(chan struct{})
			l.locks.Set(ownerID, done)
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					if cur, ok := l.locks.Get(ownerID); ok && cur == done {
						l.locks.Delete(ownerID)
					}
					l.mu.Unlock()
					close(done)
				})
			}
		}
		l.mu.Unlock()

		select {
		case <-ch:
			// Holder released; loop and try to claim.
		case <-time.After(l.timeout):
			// Advisory timeout: stop waiting for the stuck holder and
			// evict its entry so new work can proceed.
			l.logger.Warn("owner_lock_wait_timed_out",
				zap.String("owner_id", ownerID.String()),
				zap.Duration("timeout", l.timeout),
			)
			l.mu.Lock()
			if cur, ok := l.locks.Get(ownerID); ok && cur == ch {
				l.locks.Delete(ownerID)
			}
			l.mu.Unlock()
		case <-ctx.Done():
			// Caller gave up; return a no-op release.
			return func() {}
		}
	}
}

package shared

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned when a key is held by someone else
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker provides exclusive, per-key locks (one key per subscription)
type Locker interface {
	// Acquire blocks until the lock is held, ctx is done or wait elapses.
	// The returned release func must be called exactly once.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (release func(), err error)
}

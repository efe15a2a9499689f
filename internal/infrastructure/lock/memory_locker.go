package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ams/backend/internal/domain/shared"
)

// MemoryLocker implements shared.Locker inside one process. Each key owns a
// one-slot channel; holding the slot is holding the lock. ttl is ignored
// because a crashed holder takes the whole process with it.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates a MemoryLocker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

// Acquire blocks until key is free, ctx is done or wait elapses
func (l *MemoryLocker) Acquire(ctx context.Context, key string, _, wait time.Duration) (func(), error) {
	s := l.ref(key)

	select {
	case s.ch <- struct{}{}:
		return l.releaseFunc(key, s), nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
		return l.releaseFunc(key, s), nil
	case <-timer.C:
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s", shared.ErrLockNotAcquired, key)
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

// Held reports how many keys are currently locked or waited on
func (l *MemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *MemoryLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *MemoryLocker) releaseFunc(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}
}

var _ shared.Locker = (*MemoryLocker)(nil)

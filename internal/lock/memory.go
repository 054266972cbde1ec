package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a process-local Locker for single-node deployments and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, name string, timeout time.Duration) (Lease, error) {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
		return &memoryLease{slot: ch}, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return &memoryLease{slot: ch}, nil
	case <-timer.C:
		return nil, ErrNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memoryLease struct {
	once sync.Once
	slot chan struct{}
}

func (m *memoryLease) Release(context.Context) error {
	released := false
	m.once.Do(func() {
		<-m.slot
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}

// Package locking abstracts the mutual exclusion used to serialize merges and
// detection runs. Production uses the Redis locker; tests and single-instance
// deployments use the local one.
package locking

import (
	"context"
	"sync"
	"time"
)

// Locker serializes work on a named resource.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Local is an in-process Locker backed by per-key mutexes. The ttl is ignored
// since the process holding the lock cannot outlive itself.
type Local struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*sync.Mutex)}
}

func (l *Local) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
